package history

import "encoding/json"

// PayloadFormat selects how transcripts are persisted. The format is fixed
// once at store construction; rows of both formats may coexist in one table
// and are decoded by shape, not by the store's current setting.
type PayloadFormat string

const (
	// FormatLegacy stores the combined transcript as a bare string.
	FormatLegacy PayloadFormat = "legacy"

	// FormatEnhanced stores the local and server transcripts separately
	// alongside the combined text.
	FormatEnhanced PayloadFormat = "enhanced"
)

// Transcript is the transcript content of a submitted message.
type Transcript struct {
	// Local is the transcript produced by the on-device recogniser.
	Local string `json:"local"`

	// Remote is the server-side transcription, empty when none was made.
	Remote string `json:"remote"`

	// Combined is the canonical text that was submitted.
	Combined string `json:"combined"`
}

// storedPayload is the tagged on-disk form: exactly one branch is set.
type storedPayload struct {
	Legacy   *string     `json:"legacy,omitempty"`
	Enhanced *Transcript `json:"enhanced,omitempty"`
}

// encodePayload renders tr in the given format.
func encodePayload(format PayloadFormat, tr Transcript) (string, error) {
	var sp storedPayload
	switch format {
	case FormatEnhanced:
		sp.Enhanced = &tr
	default:
		sp.Legacy = &tr.Combined
	}
	data, err := json.Marshal(sp)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodePayload parses a stored payload. Malformed or unrecognised data
// falls back to treating the raw stored text as the combined transcript;
// a stored row never fails to load.
func decodePayload(raw string) Transcript {
	var sp storedPayload
	if err := json.Unmarshal([]byte(raw), &sp); err == nil {
		switch {
		case sp.Enhanced != nil:
			return *sp.Enhanced
		case sp.Legacy != nil:
			return Transcript{Combined: *sp.Legacy}
		}
	}
	return Transcript{Combined: raw}
}
