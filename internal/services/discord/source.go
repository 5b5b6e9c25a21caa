package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"garagewatch/internal/config"
	"garagewatch/internal/ingest"
	"garagewatch/internal/logging"
	"garagewatch/internal/services"
)

const (
	serviceName     = "discord"
	defaultPageSize = 100
)

// pageFunc fetches up to limit messages posted after afterID.
type pageFunc func(ctx context.Context, channelID string, limit int, afterID string) ([]*discordgo.Message, error)

// Source pages through a channel's history oldest first.
type Source struct {
	channelID string
	pageSize  int
	fetch     pageFunc
	session   *discordgo.Session
	logger    *slog.Logger
}

// NewSource opens a REST session authenticated with the bot token in cfg.
func NewSource(cfg *config.Config, logger *slog.Logger) (*Source, error) {
	token := strings.TrimSpace(cfg.Discord.Token)
	if token == "" {
		return nil, services.Wrap(services.ErrConfiguration, serviceName, "open session", "token is empty", nil)
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	session, err := discordgo.New(token)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, serviceName, "open session", "", err)
	}
	session.UserAgent = "garagewatch (https://github.com/bwmarrin/discordgo)"
	fetch := func(ctx context.Context, channelID string, limit int, afterID string) ([]*discordgo.Message, error) {
		return session.ChannelMessages(channelID, limit, "", afterID, "", discordgo.WithContext(ctx))
	}
	src := newSource(cfg.Discord.ChannelID, cfg.Discord.PageSize, fetch, logger)
	src.session = session
	return src, nil
}

func newSource(channelID string, pageSize int, fetch pageFunc, logger *slog.Logger) *Source {
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	return &Source{
		channelID: strings.TrimSpace(channelID),
		pageSize:  pageSize,
		fetch:     fetch,
		logger:    logging.NewComponentLogger(logger, serviceName),
	}
}

// Messages yields every message after the cursor, oldest first, one page at
// a time until an empty page is returned.
func (s *Source) Messages(ctx context.Context, after int64, fn func(ingest.Message) error) error {
	cursor := max(after, 0)
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Without an after id the endpoint returns the newest page, so an
		// empty store starts from snowflake 0.
		afterID := strconv.FormatInt(cursor, 10)
		page, err := s.fetch(ctx, s.channelID, s.pageSize, afterID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return classify(err, "fetch history page")
		}
		if len(page) == 0 {
			s.logger.Debug("history exhausted", logging.Int("pages", pages))
			return nil
		}
		pages++

		msgs := make([]ingest.Message, 0, len(page))
		for _, raw := range page {
			msg, err := Convert(raw)
			if err != nil {
				logging.WarnWithContext(s.logger, "ignoring message with invalid id", "discord_bad_message",
					logging.String("message_id", raw.ID),
					logging.Error(err),
					logging.String(logging.FieldImpact, "message not collected"),
				)
				continue
			}
			msgs = append(msgs, msg)
		}
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

		advanced := false
		for _, msg := range msgs {
			if msg.ID <= cursor {
				continue
			}
			if err := fn(msg); err != nil {
				return err
			}
			cursor = msg.ID
			advanced = true
		}
		if !advanced {
			// Every entry was at or before the cursor; stop rather than loop.
			return nil
		}
		s.logger.Debug("history page processed",
			logging.Int("page", pages),
			logging.Int("messages", len(msgs)),
			logging.Int64("cursor", cursor),
		)
	}
}

// Close releases the underlying session.
func (s *Source) Close() error {
	if s == nil || s.session == nil {
		return nil
	}
	s.session.Client.CloseIdleConnections()
	return nil
}

// Convert maps a discordgo message onto the ingest model.
func Convert(m *discordgo.Message) (ingest.Message, error) {
	if m == nil {
		return ingest.Message{}, errors.New("nil message")
	}
	id, err := strconv.ParseInt(m.ID, 10, 64)
	if err != nil {
		return ingest.Message{}, fmt.Errorf("parse message id %q: %w", m.ID, err)
	}
	msg := ingest.Message{ID: id, Timestamp: m.Timestamp.UTC()}
	if m.Timestamp.IsZero() {
		if ts, tsErr := discordgo.SnowflakeTimestamp(m.ID); tsErr == nil {
			msg.Timestamp = ts.UTC()
		}
	}
	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		embed := ingest.Embed{}
		for _, f := range e.Fields {
			if f == nil {
				continue
			}
			embed.Fields = append(embed.Fields, ingest.Field{Name: f.Name, Value: f.Value})
		}
		if e.Thumbnail != nil {
			embed.ThumbnailURL = e.Thumbnail.URL
		}
		if e.Image != nil {
			embed.ImageURL = e.Image.URL
		}
		msg.Embeds = append(msg.Embeds, embed)
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, ingest.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
	}
	return msg, nil
}

func classify(err error, operation string) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return services.Wrap(services.MarkerForStatus(code), serviceName, operation,
			fmt.Sprintf("status %d %s", code, http.StatusText(code)), err)
	}
	return services.Wrap(services.ErrTransient, serviceName, operation, "", err)
}
