// Package tokenizer turns text into token ids for building embedding bags.
//
// Two tokenizers are provided:
//   - tiktoken: BPE tokenizer used by GPT-3/GPT-4 (cl100k_base, p50k_base)
//   - hash: lower-cased whitespace words hashed into a fixed vocabulary
//
// Example usage:
//
//	tok, err := tokenizer.New("cl100k_base", 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ids, err := tok.Encode("Hello, world!")
//	if err != nil {
//	    log.Fatal(err)
//	}
package tokenizer
