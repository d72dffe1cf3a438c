package storage

// Chunk size bounds for content splitting. A chunk of MaxChunkSize bytes
// grows by a third when base64-encoded into a DAG-JSON block and must still
// fit within MaxBlockResponseSize.
const (
	DefaultChunkSize = 1 << 20
	MaxChunkSize     = 2 << 20
)

// SplitIntoChunks splits data into fixed-size chunks.
// The last chunk may be smaller than chunkSize.
// Returns an error if chunkSize is not in 1..MaxChunkSize.
func SplitIntoChunks(data []byte, chunkSize int) ([][]byte, error) {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return nil, ErrInvalidChunkSize
	}
	if len(data) == 0 {
		return nil, nil
	}
	var chunks [][]byte
	for i := 0; i < len(data); i += chunkSize {
		end := min(i+chunkSize, len(data))
		chunk := make([]byte, end-i)
		copy(chunk, data[i:end])
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
