package chunk

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// cl100k_base is the encoding OpenAI's embedding models use, the same
// one original_source/src/holocron/data_processor.py loads via
// tiktoken.get_encoding("cl100k_base") for this exact chunk-budgeting
// purpose (spec §4.3: "a deterministic tokenizer equivalent to the
// embedding model's tokenizer").
const tiktokenEncoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// CountTokens counts text under cl100k_base. If the encoder's
// vocabulary file can't be loaded (no network access to fetch it, the
// same constraint tiktoken itself has), it falls back to a word-length
// approximation rather than failing chunk budgeting outright.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if e := encoder(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return approximateTokenCount(text)
}

func encoder() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		if e, err := tiktoken.GetEncoding(tiktokenEncoding); err == nil {
			enc = e
		}
	})
	return enc
}

// approximateTokenCount tracks GPT-style BPE token counts within a few
// percent for English prose: each whitespace-separated word counts one
// token per four characters, rounded up, so a word of four characters
// or fewer is a single token.
func approximateTokenCount(text string) int {
	words := strings.Fields(text)
	tokens := 0
	for _, w := range words {
		tokens += wordTokenCount(w)
	}
	return tokens
}

func wordTokenCount(word string) int {
	n := len([]rune(word))
	if n <= 4 {
		return 1
	}
	count := n / 4
	if n%4 != 0 {
		count++
	}
	return count
}
