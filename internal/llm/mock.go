package llm

import "context"

// MockClient permite tests sin llamar a un LLM real.
type MockClient struct {
	Response  string
	ChunkSize int
	Err       error
}

func (m *MockClient) StreamChat(ctx context.Context, messages []Message) (Stream, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return NewChunkStream(m.Response, m.ChunkSize), nil
}
