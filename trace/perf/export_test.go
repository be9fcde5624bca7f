package perf

// BufferedLen returns the number of input bytes the tokenizer still retains.
func (t *Tokenizer) BufferedLen() int64 { return t.buf.Len() }
