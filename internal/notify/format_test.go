package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"newsnotify/internal/changefeed"
	"newsnotify/internal/enrich"
)

func sampleItem() enrich.EnrichedEntry {
	return enrich.EnrichedEntry{
		Record: changefeed.Record{
			EventName:         changefeed.EventInsert,
			URL:               "https://aws.amazon.com/about-aws/whats-new/2024/lambda/",
			Title:             "Lambda update",
			Category:          "whatsnew",
			PubTime:           "2024-06-01T00:00:00Z",
			NotifierName:      "aws-whatsnew",
			ServiceCategories: []string{"lambda"},
		},
		Summary: "X does Y.",
		Detail:  "- point one\n- point two\n",
	}
}

func TestFormatIdempotent(t *testing.T) {
	item := sampleItem()
	for _, v := range []Variant{VariantChatBlocks, VariantChatCard, VariantRaw} {
		a, err := Format(v, item)
		require.NoError(t, err)
		b, err := Format(v, item)
		require.NoError(t, err)
		require.Equal(t, a, b, "variant %s", v)
	}
}

func TestFormatUnknownVariant(t *testing.T) {
	_, err := Format(Variant("carrier-pigeon"), sampleItem())
	require.ErrorIs(t, err, ErrUnknownVariant)
}

func TestChatBlocksBulletList(t *testing.T) {
	payload, err := Format(VariantChatBlocks, sampleItem())
	require.NoError(t, err)

	var msg struct {
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	// header / メタ情報 / バッジ / 要約 / 箇条書き / リンクボタン
	require.Len(t, msg.Blocks, 6)

	var list map[string]any
	for _, b := range msg.Blocks {
		if b["type"] == "rich_text" {
			list = b
		}
	}
	require.NotNil(t, list, "rich_text block missing")

	elements := list["elements"].([]any)[0].(map[string]any)["elements"].([]any)
	require.Len(t, elements, 2)

	var texts []string
	for _, el := range elements {
		section := el.(map[string]any)
		texts = append(texts, section["elements"].([]any)[0].(map[string]any)["text"].(string))
	}
	// 先頭の "- " は剥がされていること
	require.Equal(t, []string{"point one", "point two"}, texts)
}

func TestChatBlocksBadgeSectionOnlyWithTags(t *testing.T) {
	item := sampleItem()
	item.ServiceCategories = nil

	payload, err := Format(VariantChatBlocks, item)
	require.NoError(t, err)

	var msg struct {
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	require.Len(t, msg.Blocks, 5)
	require.NotContains(t, string(payload), "対象サービス")
}

func TestChatCardNormalizesSentenceBreaks(t *testing.T) {
	item := sampleItem()
	item.Detail = "- 新機能です。\n- 便利です。\n"

	payload, err := Format(VariantChatCard, item)
	require.NoError(t, err)

	require.Contains(t, string(payload), `。\r`)
	require.NotContains(t, string(payload), `。\n`)
}

func TestChatCardStructure(t *testing.T) {
	payload, err := Format(VariantChatCard, sampleItem())
	require.NoError(t, err)

	s := string(payload)
	require.Contains(t, s, `"Action.ToggleVisibility"`)
	require.Contains(t, s, `"Action.OpenUrl"`)
	require.Contains(t, s, "collapsedItems")
	require.Contains(t, s, "expandedItems")
	require.Contains(t, s, "application/vnd.microsoft.card.adaptive")
}

func TestRawVariantCarriesWholeItem(t *testing.T) {
	payload, err := Format(VariantRaw, sampleItem())
	require.NoError(t, err)

	var decoded enrich.EnrichedEntry
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, sampleItem(), decoded)
}

func TestDetailLines(t *testing.T) {
	lines := detailLines("- a\n\n- b\nc\n")
	require.Equal(t, []string{"a", "b", "c"}, lines)
}
