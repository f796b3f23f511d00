package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"newsnotify/internal/enrich"
)

// Variant 通知ペイロードの形式。クローズドな集合で、
// 追加する場合は Format の switch に case を足す
type Variant string

const (
	// Slack Block Kit 形式
	VariantChatBlocks Variant = "chat-blocks"
	// Teams Adaptive Card 形式
	VariantChatCard Variant = "chat-card"
	// 整形なしの構造化メッセージ（機械処理向け）
	VariantRaw Variant = "raw"
)

var ErrUnknownVariant = errors.New("unknown destination variant")

// Format は enriched entry を宛先形式のバイト列へ変換する純関数。
// 同じ入力に対して常に同じバイト列を返す
func Format(v Variant, item enrich.EnrichedEntry) ([]byte, error) {
	switch v {
	case VariantChatBlocks:
		return json.Marshal(chatBlocksPayload(item))
	case VariantChatCard:
		return json.Marshal(chatCardPayload(item))
	case VariantRaw:
		return json.Marshal(item)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
}

// serviceBadges タグを ``` 区切りのバッジ風テキストにする。タグなしなら空文字
func serviceBadges(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "```\n" + strings.Join(tags, " | ") + "\n```"
}

// detailLines detail を行単位に分割し、空行を捨てて先頭の "- " を剥がす
func detailLines(detail string) []string {
	var lines []string
	for _, line := range strings.Split(detail, "\n") {
		if line == "" {
			continue
		}
		lines = append(lines, strings.TrimLeft(line, "- "))
	}
	return lines
}

func chatBlocksPayload(item enrich.EnrichedEntry) map[string]any {
	elements := make([]map[string]any, 0)
	for _, line := range detailLines(item.Detail) {
		elements = append(elements, map[string]any{
			"type": "rich_text_section",
			"elements": []map[string]any{
				{"type": "text", "text": line},
			},
		})
	}

	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": item.Title},
		},
		{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": "*カテゴリ:* " + item.Category},
				{"type": "mrkdwn", "text": "*投稿時刻:* :clock1: " + item.PubTime},
			},
		},
	}

	// サービスバッジはタグがあるときだけ
	if badges := serviceBadges(item.ServiceCategories); badges != "" {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": "*🏷️ 対象サービス*\n" + badges},
		})
	}

	blocks = append(blocks,
		map[string]any{
			"type": "section",
			"text": map[string]any{"type": "plain_text", "text": item.Summary},
		},
		map[string]any{
			"type": "rich_text",
			"elements": []map[string]any{
				{
					"type":     "rich_text_list",
					"style":    "bullet",
					"indent":   0,
					"elements": elements,
				},
			},
		},
		map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "plain_text",
				"text": ":link:AWSページを確認するには、ボタンをクリックしてください。",
			},
			"accessory": map[string]any{
				"type":      "button",
				"text":      map[string]any{"type": "plain_text", "text": "Click Me"},
				"value":     "click_me_123",
				"url":       item.URL,
				"action_id": "button-action",
			},
		},
	)

	return map[string]any{"blocks": blocks}
}

func chatCardPayload(item enrich.EnrichedEntry) map[string]any {
	// 文末の改行をカード内改行に寄せる。レンダラが 1 文ごとに
	// 段落を起こすのを防ぐ
	detail := strings.ReplaceAll(item.Detail, "。\n", "。\r")

	collapsed := []map[string]any{
		{"type": "TextBlock", "text": "**" + item.Title + "**"},
		{"type": "TextBlock", "text": fmt.Sprintf("%s Posted at: %s", item.Category, item.PubTime)},
	}
	if badges := serviceBadges(item.ServiceCategories); badges != "" {
		collapsed = append(collapsed, map[string]any{
			"type":    "TextBlock",
			"text":    badges,
			"wrap":    true,
			"spacing": "Small",
		})
	}
	collapsed = append(collapsed, map[string]any{
		"type": "TextBlock",
		"wrap": true,
		"text": item.Summary,
	})

	card := map[string]any{
		"type":    "AdaptiveCard",
		"version": "1.3",
		"body": []map[string]any{
			{
				"type": "ColumnSet",
				"columns": []map[string]any{
					{
						"type":  "Column",
						"width": "auto",
						"items": []map[string]any{
							{
								"type":  "Container",
								"id":    "collapsedItems",
								"items": collapsed,
							},
							{
								"type":      "Container",
								"id":        "expandedItems",
								"isVisible": false,
								"items": []map[string]any{
									{"type": "TextBlock", "wrap": true, "text": detail},
								},
							},
						},
					},
				},
			},
			{
				"type": "Container",
				"items": []map[string]any{
					{
						"type": "ColumnSet",
						"columns": []map[string]any{
							{
								"type":  "Column",
								"width": "stretch",
								"items": []map[string]any{
									{
										"type":      "TextBlock",
										"text":      "see less",
										"id":        "collapse",
										"isVisible": false,
										"wrap":      true,
										"color":     "Accent",
									},
									{
										"type":  "TextBlock",
										"text":  "see more",
										"id":    "expand",
										"wrap":  true,
										"color": "Accent",
									},
								},
							},
						},
						"selectAction": map[string]any{
							"type":           "Action.ToggleVisibility",
							"targetElements": []string{"collapse", "expand", "expandedItems"},
						},
					},
				},
			},
		},
		"actions": []map[string]any{
			{
				"type":  "Action.OpenUrl",
				"title": "Open Link",
				"wrap":  true,
				"url":   item.URL,
			},
		},
		"msteams": map[string]any{"width": "Full"},
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
	}

	return map[string]any{
		"type": "message",
		"attachments": []map[string]any{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content":     card,
			},
		},
	}
}
