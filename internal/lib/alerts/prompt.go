package alerts

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// SystemPrompt steers the model toward short, actionable flood guidance.
const SystemPrompt = `You are a road hazard analyst. Transform raw flood and road hazard reports into clear guidance for drivers.

Instructions:
- Parse the input carefully, extracting only factual details.
- Remove jargon, codes, and abbreviations.
- Focus on what a driver approaching the area needs to know and do.
- Never invent facts not present in the report.

Return a valid JSON object with these exact fields:
- headline (string) – 1-line summary of the hazard, max 120 chars, no coordinates
- advice (string) – 1-2 sentences telling a driver what to do (slow down, turn around, follow the detour)
- severity (enum) – "advisory" | "warning" | "danger"

Severity guidance:
- danger: road impassable or submerged, crossing unsafe
- warning: water on the road, flooding developing, delays likely
- advisory: conditions worth monitoring, no immediate obstruction

Good headline examples:
- Road submerged under floodwater, closed to all traffic.
- Culvert washed out, single lane passable with care.
- Heavy rain reported, watch for standing water.

Bad headline examples (too vague or include coordinates):
- Alert at 16.43, 80.72
- Something happened on a road`

// enhancementSchema constrains the model output shape.
var enhancementSchema = openai.ChatCompletionResponseFormatJSONSchema{
	Name:   "traveler_alert",
	Strict: true,
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"headline": {
				"type": "string",
				"maxLength": 120,
				"description": "One line hazard summary, max 120 chars"
			},
			"advice": {
				"type": "string",
				"description": "What a driver approaching the area should do"
			},
			"severity": {
				"type": "string",
				"enum": ["advisory", "warning", "danger"],
				"description": "Hazard severity level"
			}
		},
		"required": ["headline", "advice", "severity"],
		"additionalProperties": false
	}`),
}
