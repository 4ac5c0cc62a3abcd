package avatar

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory keeps avatars in process memory. It backs local development when no
// Cloudinary account is configured.
type Memory struct {
	mu     sync.Mutex
	images map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{images: make(map[string][]byte)}
}

func (m *Memory) URL(ctx context.Context, subject string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[subject]; !ok {
		return Fallback, nil
	}
	return fmt.Sprintf("memory://avatars/%s?v=%d", subject, len(m.images[subject])), nil
}

func (m *Memory) Upload(ctx context.Context, subject string, image io.Reader) error {
	b, err := io.ReadAll(image)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return fmt.Errorf("empty image")
	}
	m.mu.Lock()
	m.images[subject] = b
	m.mu.Unlock()
	return nil
}
