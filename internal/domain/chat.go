package domain

import "time"

// ChatMessage es un turno de conversación con rol etiquetado.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat es un transcript persistido, propiedad de un usuario.
type Chat struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
