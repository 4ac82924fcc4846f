package llm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize es el tamaño de frame al emular streaming sobre una
// respuesta batch.
const DefaultChunkSize = 80

// Stream es una secuencia perezosa y finita de fragmentos de contenido.
// No es reiniciable; el consumidor la cancela con Close.
type Stream interface {
	// Recv devuelve el siguiente fragmento, o io.EOF al completarse.
	Recv() (string, error)
	Close() error
}

// sseStream adapta un event-stream ajeno (frames delimitados por doble salto
// de línea) al contrato Stream.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitSSEFrames)
	return &sseStream{body: body, scanner: scanner}
}

func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		payload, terminal := parseSSEFrame(s.scanner.Bytes())
		if terminal {
			s.done = true
			return "", io.EOF
		}
		if payload == "" {
			continue
		}
		text, ok := extractContent(payload)
		if !ok || text == "" {
			continue
		}
		return text, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}

// splitSSEFrames delimita frames por doble salto de línea, con o sin \r.
func splitSSEFrames(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	nn := bytes.Index(data, []byte("\n\n"))
	rn := bytes.Index(data, []byte("\r\n\r\n"))
	switch {
	case rn >= 0 && (nn < 0 || rn < nn):
		return rn + 4, data[:rn], nil
	case nn >= 0:
		return nn + 2, data[:nn], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseSSEFrame junta las líneas "data:" de un frame. El segundo valor indica
// el marcador terminal [DONE].
func parseSSEFrame(frame []byte) (string, bool) {
	var parts []string
	for _, line := range strings.Split(string(frame), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		parts = append(parts, strings.TrimSpace(line[len("data:"):]))
	}
	payload := strings.Join(parts, "\n")
	if payload == "[DONE]" {
		return "", true
	}
	return payload, false
}

// extractContent tolera dos formas de payload: delta (streaming nativo) y
// message (respuesta completa re-encuadrada).
func extractContent(payload string) (string, bool) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", false
	}
	if c := chunk.Choices[0].Delta.Content; c != "" {
		return c, true
	}
	return chunk.Choices[0].Message.Content, true
}

// chunkStream emite un texto completo en frames de tamaño fijo, sin más
// demora que el yield cooperativo del consumidor.
type chunkStream struct {
	text string
	size int
	pos  int
}

// NewChunkStream crea un stream sintético sobre una respuesta batch.
func NewChunkStream(text string, size int) Stream {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &chunkStream{text: text, size: size}
}

func (s *chunkStream) Recv() (string, error) {
	if s.pos >= len(s.text) {
		return "", io.EOF
	}
	end := s.pos + s.size
	if end >= len(s.text) {
		end = len(s.text)
	} else {
		// Nunca cortar un rune a la mitad: el frame debe ser UTF-8 válido.
		for end > s.pos && !utf8.RuneStart(s.text[end]) {
			end--
		}
		if end == s.pos {
			end = s.pos + s.size
		}
	}
	chunk := s.text[s.pos:end]
	s.pos = end
	return chunk, nil
}

func (s *chunkStream) Close() error {
	s.pos = len(s.text)
	return nil
}
