// Package tokens counts tokens for usage reporting. Counts come from real
// tiktoken encodings, never from character-length heuristics.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenizerCache   = make(map[string]*tiktoken.Tiktoken)
	tokenizerCacheMu sync.RWMutex
)

// GetTokenizer returns a cached tiktoken encoder for the given model
func GetTokenizer(model string) (*tiktoken.Tiktoken, error) {
	tokenizerCacheMu.RLock()
	if tkm, ok := tokenizerCache[model]; ok {
		tokenizerCacheMu.RUnlock()
		return tkm, nil
	}
	tokenizerCacheMu.RUnlock()

	tokenizerCacheMu.Lock()
	defer tokenizerCacheMu.Unlock()

	// Double-check after acquiring write lock
	if tkm, ok := tokenizerCache[model]; ok {
		return tkm, nil
	}

	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Upstream model names (sonar, pplx_pro, ...) have no tiktoken
		// mapping; cl100k_base is the closest stable encoding.
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	tokenizerCache[model] = tkm
	return tkm, nil
}

// Count returns the token count of text under the model's encoding.
func Count(text, model string) (int, error) {
	tkm, err := GetTokenizer(model)
	if err != nil {
		return 0, err
	}
	return len(tkm.Encode(text, nil, nil)), nil
}

// Usage is the OpenAI-compatible usage block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CountUsage tokenizes prompt and completion independently and sums them.
func CountUsage(prompt, completion, model string) (Usage, error) {
	promptTokens, err := Count(prompt, model)
	if err != nil {
		return Usage{}, err
	}
	completionTokens, err := Count(completion, model)
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}, nil
}
