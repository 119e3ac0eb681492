package session

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FileProvider reads the token from a file the user saved from the browser.
//
// The file holds either the bare token or header lines, one of which is
// "Authorization: Bearer <token>".
type FileProvider struct {
	path string

	mu   sync.Mutex
	last string
}

// NewFileProvider creates a FileProvider for path
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// GetToken reads the token file.
func (p *FileProvider) GetToken(ctx context.Context) (string, error) {
	token, err := p.read()
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.last = token
	p.mu.Unlock()
	return token, nil
}

// RequestNewToken re-reads the file and fails if the token has not changed
// since the last read.
func (p *FileProvider) RequestNewToken(ctx context.Context) (string, error) {
	token, err := p.read()
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token == "" || token == p.last {
		return "", fmt.Errorf("%w: token in %s was not renewed", ErrNoSuitableContext, p.path)
	}
	p.last = token
	return token, nil
}

func (p *FileProvider) read() (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read token file: %v", ErrNoSuitableContext, err)
	}
	return parseToken(string(data)), nil
}

func parseToken(data string) string {
	scanner := bufio.NewScanner(strings.NewReader(data))
	first := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[0]), "authorization") {
			return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[1]), "Bearer"))
		}
		if first == "" {
			first = line
		}
	}
	return strings.TrimPrefix(first, "Bearer ")
}
