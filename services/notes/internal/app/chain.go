package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"readingly/pkg/ai"
	"readingly/pkg/domain"
)

const chainSystemPrompt = "당신은 독서 기록을 분석하고 구조화하는 전문가입니다."

const classificationPrompt = `당신은 독서 기록을 분석하여 의미적으로 유사한 내용끼리 그룹화하는 전문가입니다.

## 입력 데이터
사용자의 독서 기록 (하이라이트, 메모, 사진 속 텍스트):
%s

## 작업
1. 위 독서 기록들을 주제/테마별로 3-7개의 클러스터로 분류하세요.
2. 각 클러스터에는 의미적으로 관련된 기록들을 배치하세요.
3. 각 클러스터에 적절한 이름을 부여하세요.

## 출력 형식 (JSON만 출력)
{
  "clusters": [
    {
      "clusterId": "cluster_1",
      "name": "클러스터 주제명",
      "nodeIds": ["node_id_1", "node_id_2", ...],
      "confidence": 0.85
    },
    ...
  ]
}

## 규칙
- 각 기록은 반드시 하나의 클러스터에만 속해야 합니다.
- 클러스터 이름은 한글로 2-5단어로 작성하세요.
- confidence는 0.0-1.0 사이의 값으로, 해당 분류의 확신도를 나타냅니다.
- 너무 작은 클러스터(1개 기록)는 피하고, 관련 클러스터에 병합하세요.
- JSON만 출력하세요. 다른 설명은 포함하지 마세요.`

const summaryPrompt = `당신은 독서 기록 클러스터를 분석하여 핵심 인사이트를 요약하는 전문가입니다.

## 입력 데이터
분류된 클러스터와 각 클러스터에 속한 기록들:
%s

## 작업
각 클러스터에 대해:
1. 해당 클러스터의 핵심 주제를 파악하세요.
2. 클러스터 내 기록들의 공통된 인사이트를 2-3문장으로 요약하세요.
3. 가장 중요한 키워드 2-3개를 추출하세요.

## 출력 형식 (JSON만 출력)
{
  "summaries": [
    {
      "clusterId": "cluster_1",
      "summary": "이 클러스터의 핵심 인사이트 요약 (2-3문장)",
      "keywords": ["키워드1", "키워드2", "키워드3"]
    },
    ...
  ]
}

## 규칙
- 요약은 사용자가 기록한 내용을 기반으로 작성하세요.
- 일반적인 책 내용이 아닌, 사용자가 중요하게 생각한 부분을 강조하세요.
- 요약은 한글로 작성하고, 2-3문장을 넘지 마세요.
- 키워드는 명사 형태로 추출하세요.
- JSON만 출력하세요. 다른 설명은 포함하지 마세요.`

const connectionPrompt = `당신은 독서 기록들 사이의 의미적 연결고리를 찾는 전문가입니다.

## 입력 데이터
클러스터별로 분류된 독서 기록들과 요약:
%s

## 작업
서로 다른 클러스터에 속한 기록들 사이에서 의미적 연결을 찾으세요:
1. 유사한 개념이나 아이디어를 공유하는 기록들
2. 인과관계가 있는 기록들 (A가 B의 원인/결과)
3. 상호 보완적인 관점을 제시하는 기록들
4. 같은 주제를 다른 각도에서 다루는 기록들

## 출력 형식 (JSON만 출력)
{
  "connections": [
    {
      "fromNodeId": "node_id_1",
      "toNodeId": "node_id_2",
      "reason": "두 기록이 연결되는 이유 (1-2문장)"
    },
    ...
  ]
}

## 규칙
- 같은 클러스터 내의 기록들은 연결하지 마세요 (이미 그룹화됨).
- 연결은 의미있는 것만 포함하세요 (최소 3개, 최대 10개).
- reason은 한글로 작성하고, 구체적으로 왜 연결되는지 설명하세요.
- 억지스러운 연결은 피하세요. 명확한 관계가 있는 것만 포함하세요.
- JSON만 출력하세요. 다른 설명은 포함하지 마세요.`

// catchAllClusterName holds records the model left out of every
// cluster, so no content silently disappears from the graph.
const catchAllClusterName = "기타"

type clusterAssignment struct {
	ClusterID  string   `json:"clusterId"`
	Name       string   `json:"name"`
	NodeIDs    []string `json:"nodeIds"`
	Confidence float64  `json:"confidence"`
}

type classificationResult struct {
	Clusters []clusterAssignment `json:"clusters"`
}

type summaryResult struct {
	Summaries []struct {
		ClusterID string   `json:"clusterId"`
		Summary   string   `json:"summary"`
		Keywords  []string `json:"keywords"`
	} `json:"summaries"`
}

type connectionResult struct {
	Connections []struct {
		FromNodeID string `json:"fromNodeId"`
		ToNodeID   string `json:"toNodeId"`
		Reason     string `json:"reason"`
	} `json:"connections"`
}

// Chain runs the three-stage structuring pipeline: classification into
// clusters, per-cluster summaries, then cross-cluster connections. The
// stages are sequential because each prompt is built from the previous
// stage's output.
type Chain struct {
	generator ai.TextGenerator
	now       func() time.Time
}

func NewChain(gen ai.TextGenerator) *Chain {
	return &Chain{generator: gen, now: time.Now}
}

// Run structures the given content items for one book.
func (c *Chain) Run(ctx context.Context, bookID string, items []domain.ContentItem) (domain.NoteStructure, error) {
	nodes := make([]domain.NoteNode, 0, len(items))
	for _, item := range items {
		nodes = append(nodes, domain.NoteNode{
			ID:         item.ID,
			Type:       item.Type,
			Content:    item.Text,
			PageNumber: item.PageNumber,
			SourceID:   item.SourceID,
		})
	}

	classification, err := c.classify(ctx, items)
	if err != nil {
		return domain.NoteStructure{}, fmt.Errorf("classification stage: %w", err)
	}
	classification = repairPartition(classification, nodes)

	summaries, err := c.summarize(ctx, classification, items)
	if err != nil {
		return domain.NoteStructure{}, fmt.Errorf("summary stage: %w", err)
	}

	connections, err := c.connect(ctx, classification, summaries, items)
	if err != nil {
		return domain.NoteStructure{}, fmt.Errorf("connection stage: %w", err)
	}

	clusters := buildClusters(classification, summaries, nodes)
	return domain.NoteStructure{
		BookID:      bookID,
		GeneratedAt: c.now().UTC(),
		Clusters:    clusters,
		Connections: filterConnections(connections, clusters),
	}, nil
}

func (c *Chain) classify(ctx context.Context, items []domain.ContentItem) (classificationResult, error) {
	prompt := fmt.Sprintf(classificationPrompt, formatContents(items))
	raw, err := c.generator.GenerateText(ctx, chainSystemPrompt, prompt)
	if err != nil {
		return classificationResult{}, err
	}
	var result classificationResult
	if err := ai.DecodeObject(raw, &result); err != nil {
		return classificationResult{}, err
	}
	return result, nil
}

func (c *Chain) summarize(ctx context.Context, classification classificationResult, items []domain.ContentItem) (summaryResult, error) {
	prompt := fmt.Sprintf(summaryPrompt, formatClusteredContents(classification, items, 200))
	raw, err := c.generator.GenerateText(ctx, chainSystemPrompt, prompt)
	if err != nil {
		return summaryResult{}, err
	}
	var result summaryResult
	if err := ai.DecodeObject(raw, &result); err != nil {
		return summaryResult{}, err
	}
	return result, nil
}

func (c *Chain) connect(ctx context.Context, classification classificationResult, summaries summaryResult, items []domain.ContentItem) (connectionResult, error) {
	prompt := fmt.Sprintf(connectionPrompt, formatSummarizedClusters(classification, summaries, items))
	raw, err := c.generator.GenerateText(ctx, chainSystemPrompt, prompt)
	if err != nil {
		return connectionResult{}, err
	}
	var result connectionResult
	if err := ai.DecodeObject(raw, &result); err != nil {
		return connectionResult{}, err
	}
	return result, nil
}

func formatContents(items []domain.ContentItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		label := "사진 속 텍스트"
		switch item.Type {
		case domain.ContentHighlight:
			label = "하이라이트"
		case domain.ContentNote:
			label = "메모"
		}
		page := ""
		if item.PageNumber != nil {
			page = fmt.Sprintf(" (%d페이지)", *item.PageNumber)
		}
		parts = append(parts, fmt.Sprintf("[%s] %s%s:\n%s", item.ID, label, page, item.Text))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func formatClusteredContents(classification classificationResult, items []domain.ContentItem, snippetLen int) string {
	byID := contentByID(items)
	sections := make([]string, 0, len(classification.Clusters))
	for _, cluster := range classification.Clusters {
		lines := make([]string, 0, len(cluster.NodeIDs))
		for _, nodeID := range cluster.NodeIDs {
			item, ok := byID[nodeID]
			if !ok {
				continue
			}
			lines = append(lines, fmt.Sprintf("  - [%s]: %s...", nodeID, truncateRunes(item.Text, snippetLen)))
		}
		sections = append(sections, fmt.Sprintf("## 클러스터: %s (%s)\n%s",
			cluster.Name, cluster.ClusterID, strings.Join(lines, "\n")))
	}
	return strings.Join(sections, "\n\n")
}

func formatSummarizedClusters(classification classificationResult, summaries summaryResult, items []domain.ContentItem) string {
	byID := contentByID(items)
	summaryByCluster := make(map[string]struct {
		summary  string
		keywords []string
	}, len(summaries.Summaries))
	for _, s := range summaries.Summaries {
		summaryByCluster[s.ClusterID] = struct {
			summary  string
			keywords []string
		}{s.Summary, s.Keywords}
	}

	sections := make([]string, 0, len(classification.Clusters))
	for _, cluster := range classification.Clusters {
		summaryText := "요약 없음"
		keywordText := "없음"
		if s, ok := summaryByCluster[cluster.ClusterID]; ok {
			if s.summary != "" {
				summaryText = s.summary
			}
			if len(s.keywords) > 0 {
				keywordText = strings.Join(s.keywords, ", ")
			}
		}
		lines := make([]string, 0, len(cluster.NodeIDs))
		for _, nodeID := range cluster.NodeIDs {
			item, ok := byID[nodeID]
			if !ok {
				continue
			}
			lines = append(lines, fmt.Sprintf("  - [%s]: %s...", nodeID, truncateRunes(item.Text, 150)))
		}
		sections = append(sections, fmt.Sprintf("## 클러스터: %s (%s)\n요약: %s\n키워드: %s\n기록들:\n%s",
			cluster.Name, cluster.ClusterID, summaryText, keywordText, strings.Join(lines, "\n")))
	}
	return strings.Join(sections, "\n\n")
}

// repairPartition enforces the every-node-in-exactly-one-cluster
// invariant the prompt asks for but the model cannot guarantee.
// Duplicates keep their first assignment; unknown ids are dropped;
// unassigned nodes land in a catch-all cluster.
func repairPartition(classification classificationResult, nodes []domain.NoteNode) classificationResult {
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n.ID] = struct{}{}
	}

	assigned := make(map[string]struct{}, len(nodes))
	for i := range classification.Clusters {
		kept := classification.Clusters[i].NodeIDs[:0]
		for _, nodeID := range classification.Clusters[i].NodeIDs {
			if _, ok := known[nodeID]; !ok {
				continue
			}
			if _, dup := assigned[nodeID]; dup {
				continue
			}
			assigned[nodeID] = struct{}{}
			kept = append(kept, nodeID)
		}
		classification.Clusters[i].NodeIDs = kept
	}

	// drop clusters emptied by the cleanup above
	clusters := classification.Clusters[:0]
	for _, cluster := range classification.Clusters {
		if len(cluster.NodeIDs) > 0 {
			clusters = append(clusters, cluster)
		}
	}
	classification.Clusters = clusters

	var leftover []string
	for _, n := range nodes {
		if _, ok := assigned[n.ID]; !ok {
			leftover = append(leftover, n.ID)
		}
	}
	if len(leftover) > 0 {
		ids := make(map[string]struct{}, len(classification.Clusters))
		for _, cluster := range classification.Clusters {
			ids[cluster.ClusterID] = struct{}{}
		}
		catchAllID := fmt.Sprintf("cluster_%d", len(classification.Clusters)+1)
		for n := len(classification.Clusters) + 2; ; n++ {
			if _, taken := ids[catchAllID]; !taken {
				break
			}
			catchAllID = fmt.Sprintf("cluster_%d", n)
		}
		classification.Clusters = append(classification.Clusters, clusterAssignment{
			ClusterID: catchAllID,
			Name:      catchAllClusterName,
			NodeIDs:   leftover,
		})
	}
	return classification
}

func buildClusters(classification classificationResult, summaries summaryResult, nodes []domain.NoteNode) []domain.NoteCluster {
	nodeByID := make(map[string]domain.NoteNode, len(nodes))
	for _, n := range nodes {
		nodeByID[n.ID] = n
	}
	summaryByCluster := make(map[string]struct {
		summary  string
		keywords []string
	}, len(summaries.Summaries))
	for _, s := range summaries.Summaries {
		summaryByCluster[s.ClusterID] = struct {
			summary  string
			keywords []string
		}{s.Summary, s.Keywords}
	}

	clusters := make([]domain.NoteCluster, 0, len(classification.Clusters))
	for _, cluster := range classification.Clusters {
		clusterNodes := make([]domain.NoteNode, 0, len(cluster.NodeIDs))
		for _, nodeID := range cluster.NodeIDs {
			if n, ok := nodeByID[nodeID]; ok {
				clusterNodes = append(clusterNodes, n)
			}
		}
		s := summaryByCluster[cluster.ClusterID]
		clusters = append(clusters, domain.NoteCluster{
			ID:       cluster.ClusterID,
			Name:     cluster.Name,
			Summary:  s.summary,
			Keywords: s.keywords,
			Nodes:    clusterNodes,
		})
	}
	return clusters
}

// filterConnections keeps only connections between known nodes in
// different clusters.
func filterConnections(result connectionResult, clusters []domain.NoteCluster) []domain.NoteConnection {
	clusterByNode := make(map[string]string)
	for _, cluster := range clusters {
		for _, n := range cluster.Nodes {
			clusterByNode[n.ID] = cluster.ID
		}
	}

	out := make([]domain.NoteConnection, 0, len(result.Connections))
	for _, conn := range result.Connections {
		fromCluster, fromOK := clusterByNode[conn.FromNodeID]
		toCluster, toOK := clusterByNode[conn.ToNodeID]
		if !fromOK || !toOK {
			continue
		}
		if fromCluster == toCluster {
			continue
		}
		out = append(out, domain.NoteConnection{
			FromNodeID: conn.FromNodeID,
			ToNodeID:   conn.ToNodeID,
			Reason:     conn.Reason,
		})
	}
	return out
}

func contentByID(items []domain.ContentItem) map[string]domain.ContentItem {
	byID := make(map[string]domain.ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return byID
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
