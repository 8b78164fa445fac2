package pipeline

// Sentinel strings returned when a stage degrades. The client always gets a
// well-formed bilingual result; these stand in for whatever a failed stage
// could not produce.
const (
	// Translation stage.
	sentinelNoInput     = "No input to translate."
	sentinelEmptyOutput = "Could not translate."
	sentinelUnavailable = "Translation unavailable."

	// Transcription failure replaces the whole turn.
	degradedUserHanzi    = "无法转录音频。"
	degradedUserEnglish  = "Could not transcribe audio."
	degradedReplyHanzi   = "抱歉，我没听清您说什么。"
	degradedReplyEnglish = "Sorry, I didn't understand what you said."

	// Generation failure.
	errorReplyHanzi   = "抱歉，出现了技术问题。"
	errorReplyEnglish = "Sorry, there was a technical issue."

	// Parser fallbacks when the model's reply lacks one half. The greeting is
	// used on the first exchange, the acknowledgement afterwards.
	greetingHanzi   = "你好！很高兴见到你！"
	greetingEnglish = "Hello! Nice to meet you!"
	ackHanzi        = "我明白了。"
	ackEnglish      = "I see."
)
