package storage

import (
	"testing"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"

	"github.com/stretchr/testify/assert"
)

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000/chat-attachments",
		PublicBaseURL(config.StorageConfig{Endpoint: "localhost:9000", Bucket: "chat-attachments"}))
	assert.Equal(t, "https://s3.example.com/b",
		PublicBaseURL(config.StorageConfig{Endpoint: "s3.example.com", Bucket: "b", UseSSL: true}))
	assert.Equal(t, "https://cdn.example.com/files",
		PublicBaseURL(config.StorageConfig{Endpoint: "x", Bucket: "b", PublicBaseURL: "https://cdn.example.com/files/"}))
}

func TestAttachmentKey(t *testing.T) {
	assert.Equal(t, "chat/t1/u1-photo.png", AttachmentKey("t1", "u1", "photo.png"))
	assert.Equal(t, "chat/t1/u1-passwd", AttachmentKey("t1", "u1", "../../etc/passwd"))
	assert.Equal(t, "chat/t1/u1-doc.pdf", AttachmentKey("t1", "u1", `C:\Users\ma\doc.pdf`))
	assert.Equal(t, "chat/t1/u1-file", AttachmentKey("t1", "u1", ""))
	assert.Equal(t, "chat/t1/u1-my%20notes.txt", AttachmentKey("t1", "u1", "my notes.txt"))
}
