package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	// inFlightTTL bounds how long a crashed handler can block its key.
	inFlightTTL = time.Minute
	inFlight    = "in-flight"
)

// storedResponse is the replayable part of a handled request.
type storedResponse struct {
	Status      int             `json:"status"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

// recorder tees the response body so it can be stored after the handler.
type recorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// IdempotencyMiddleware makes retried submissions safe: a POST carrying an
// Idempotency-Key already seen on the same route replays the stored
// response, and a duplicate that arrives while the first is still running
// gets 409. A nil client disables the middleware; Redis errors let the
// request through unprotected.
func IdempotencyMiddleware(client *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if client == nil || key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := "idempotency:" + c.FullPath() + ":" + key

		claimed, err := client.SetNX(ctx, cacheKey, inFlight, inFlightTTL).Result()
		if err != nil {
			c.Next()
			return
		}
		if !claimed {
			replay(ctx, c, client, cacheKey)
			return
		}

		rec := &recorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			// Let the client retry server failures.
			_ = client.Del(ctx, cacheKey).Err()
			return
		}
		data, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			_ = client.Del(ctx, cacheKey).Err()
			return
		}
		_ = client.Set(ctx, cacheKey, data, idempotencyTTL).Err()
	}
}

func replay(ctx context.Context, c *gin.Context, client *redis.Client, cacheKey string) {
	raw, err := client.Get(ctx, cacheKey).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; treat as a fresh request.
		c.Next()
		return
	case err != nil:
		c.Next()
		return
	case string(raw) == inFlight:
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this idempotency key is in progress"})
		return
	}

	var stored storedResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		c.Next()
		return
	}
	c.Header("Idempotent-Replay", "true")
	c.Data(stored.Status, stored.ContentType, stored.Body)
	c.Abort()
}
