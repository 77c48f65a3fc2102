package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for retrieval and generation spans and metrics.
var (
	AttrModel    = attribute.Key("llm.model")
	AttrProvider = attribute.Key("llm.provider")

	AttrEmbedTextCount  = attribute.Key("llm.embed.text_count")
	AttrEmbedDimensions = attribute.Key("llm.embed.dimensions")

	AttrPromptLength   = attribute.Key("llm.prompt_length")
	AttrResponseLength = attribute.Key("llm.response_length")
)
