package emit

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// CountTokens estimates the token count of text for the given model.
func CountTokens(text, model string) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return 0, fmt.Errorf("failed to get tokenizer for model %q: %w", model, err)
	}
	return len(enc.Encode(text, nil, nil)), nil
}
