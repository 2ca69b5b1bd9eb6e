package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/skypro1111/speechcoach/internal/apperr"
	"github.com/skypro1111/speechcoach/internal/artifact"
	"github.com/skypro1111/speechcoach/internal/remote"
)

// Path is the upload endpoint relative to the service base URL
const Path = "/video-audio/"

// Client uploads artifact pairs
type Client struct {
	remote *remote.Client
	logger *slog.Logger
}

// NewClient creates an upload client on top of rc
func NewClient(rc *remote.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{remote: rc, logger: logger}
}

type uploadResponse struct {
	Saved *struct {
		ID int64 `json:"id"`
	} `json:"saved"`
}

// Upload sends both artifacts and returns the server-assigned record id.
// There is no retry; the caller decides whether to try again.
func (c *Client) Upload(ctx context.Context, video, audio *artifact.Artifact, creds remote.Credentials, title string) (int64, error) {
	if err := checkPreconditions(video, audio, creds); err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := c.remote.Request(ctx, creds).
		SetMultipartFormData(map[string]string{
			"user_email": creds.Email,
			"title":      title,
		}).
		SetMultipartFields(
			&resty.MultipartField{
				Param:       "video_file",
				FileName:    video.Filename(),
				ContentType: video.MediaType(),
				Reader:      video.Reader(),
			},
			&resty.MultipartField{
				Param:       "audio_file",
				FileName:    audio.Filename(),
				ContentType: audio.MediaType(),
				Reader:      audio.Reader(),
			},
		).
		Post(Path)
	if err := c.remote.Check("upload", resp, err, apperr.ErrUploadFailed); err != nil {
		c.logger.Warn("Upload failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return 0, err
	}

	var body uploadResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, fmt.Errorf("%w: unparseable response: %w", apperr.ErrUploadFailed, err)
	}
	if body.Saved == nil || body.Saved.ID == 0 {
		return 0, fmt.Errorf("%w: response carries no saved.id", apperr.ErrUploadFailed)
	}

	c.logger.Info("Upload complete",
		slog.Int64("record_id", body.Saved.ID),
		slog.Int("video_bytes", video.Size()),
		slog.Int("audio_bytes", audio.Size()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return body.Saved.ID, nil
}

func checkPreconditions(video, audio *artifact.Artifact, creds remote.Credentials) error {
	var missing []string
	if video == nil {
		missing = append(missing, "video artifact")
	}
	if audio == nil {
		missing = append(missing, "audio artifact")
	}
	if strings.TrimSpace(creds.Email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", apperr.ErrPreconditionFailed, strings.Join(missing, ", "))
	}
	if !creds.Authenticated() {
		return fmt.Errorf("%w: %w: no token", apperr.ErrPreconditionFailed, apperr.ErrUnauthenticated)
	}
	return nil
}
