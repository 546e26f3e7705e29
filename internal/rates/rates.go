package rates

import "strings"

// Tokens per minute of audio for each transcription model. The
// fallback rate covers models the table does not know yet.
var transcribeRates = map[string]int64{
	"base":     60,
	"small":    90,
	"medium":   150,
	"large-v3": 240,
}

const (
	defaultTranscribeRate = 120 // tokens per minute
	translateRatePerChar  = 2   // tokens per 1000 characters, times charFactor
	summarizeRatePerChar  = 1
	charFactor            = 1000
	minimumEstimate       = 10
)

// Transcribe estimates the token cost of transcribing media of the
// given duration with the given model.
func Transcribe(durationSec float64, model string) int64 {
	if durationSec <= 0 {
		return minimumEstimate
	}
	rate, ok := transcribeRates[strings.ToLower(strings.TrimSpace(model))]
	if !ok {
		rate = defaultTranscribeRate
	}
	estimate := int64(durationSec/60*float64(rate) + 0.5)
	return atLeastMinimum(estimate)
}

// Translate estimates the token cost of translating textLen characters
// into one target language.
func Translate(textLen int) int64 {
	return perChar(textLen, translateRatePerChar)
}

// Summarize estimates the token cost of summarizing textLen characters.
func Summarize(textLen int) int64 {
	return perChar(textLen, summarizeRatePerChar)
}

// TranscribeFallback estimates transcription cost when the duration is
// unknown, from the file size (rough bytes-per-second heuristic).
func TranscribeFallback(sizeBytes int64, model string) int64 {
	if sizeBytes <= 0 {
		return minimumEstimate
	}
	// Assume ~16 KiB/s source audio.
	return Transcribe(float64(sizeBytes)/(16*1024), model)
}

func perChar(textLen, rate int) int64 {
	if textLen <= 0 {
		return minimumEstimate
	}
	estimate := int64(textLen*rate+charFactor-1) / charFactor
	return atLeastMinimum(estimate)
}

func atLeastMinimum(estimate int64) int64 {
	if estimate < minimumEstimate {
		return minimumEstimate
	}
	return estimate
}
