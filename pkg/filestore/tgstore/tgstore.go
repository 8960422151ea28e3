// Package tgstore keeps audio handles as documents of a telegram chat.
package tgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/igolaizola/sonicremix/pkg/filestore/retry"
	"github.com/igolaizola/sonicremix/pkg/storage"
)

const backend = "telegram"

// uploads keeps the message of every uploaded handle.
type uploads interface {
	GetUpload(ctx context.Context, name string) (*storage.Upload, error)
	SetUpload(ctx context.Context, v *storage.Upload) error
	DeleteUpload(ctx context.Context, name string) error
}

type Store struct {
	bot     *tgbot.BotAPI
	chat    int64
	client  *http.Client
	debug   bool
	uploads uploads
	retry   *retry.Policy
}

func New(token string, chat int64, proxy string, debug bool, store *storage.Store) (*Store, error) {
	client := &http.Client{}
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("tgstore: invalid proxy %s: %w", proxy, err)
		}
		client.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	bot, err := tgbot.NewBotAPIWithClient(token, client)
	if err != nil {
		return nil, fmt.Errorf("tgstore: couldn't create bot: %w", err)
	}
	if _, err := bot.GetChat(tgbot.ChatConfig{ChatID: chat}); err != nil {
		return nil, fmt.Errorf("tgstore: couldn't reach chat %d: %w", chat, err)
	}
	return &Store{
		bot:     bot,
		chat:    chat,
		client:  client,
		debug:   debug,
		uploads: store,
		retry:   retry.Default(debug),
	}, nil
}

// Upload sends the handle as a document and records the message that
// holds it.
func (s *Store) Upload(ctx context.Context, path, name, mediaType string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("tgstore: couldn't stat %s: %w", path, err)
	}
	doc := tgbot.NewDocumentUpload(s.chat, path)
	doc.MimeType = mediaType

	var msg tgbot.Message
	if err := s.retry.Do(ctx, func(context.Context) error {
		var err error
		msg, err = s.bot.Send(doc)
		if err != nil {
			return fmt.Errorf("tgstore: couldn't send %s: %w", name, err)
		}
		return nil
	}); err != nil {
		return err
	}
	fileID := messageFile(&msg)
	if fileID == "" {
		js, _ := json.Marshal(msg)
		return fmt.Errorf("tgstore: message for %s has no file: %s", name, string(js))
	}
	if err := s.uploads.SetUpload(ctx, &storage.Upload{
		Name:      name,
		Backend:   backend,
		Ref:       toRef(s.chat, msg.MessageID, fileID),
		MediaType: mediaType,
		Size:      info.Size(),
	}); err != nil {
		return fmt.Errorf("tgstore: couldn't record %s: %w", name, err)
	}
	if s.debug {
		log.Printf("tgstore: uploaded %s as message %d\n", name, msg.MessageID)
	}
	return nil
}

// messageFile returns the id of the file attached to the message. Audio
// documents may come back as audio or voice depending on their type.
func messageFile(msg *tgbot.Message) string {
	switch {
	case msg.Audio != nil && msg.Audio.FileID != "":
		return msg.Audio.FileID
	case msg.Voice != nil && msg.Voice.FileID != "":
		return msg.Voice.FileID
	case msg.Document != nil && msg.Document.FileID != "":
		return msg.Document.FileID
	}
	return ""
}

// Download writes the handle stored under name to path.
func (s *Store) Download(ctx context.Context, path, name string) error {
	up, err := s.uploads.GetUpload(ctx, name)
	if err != nil {
		return fmt.Errorf("tgstore: couldn't find %s: %w", name, err)
	}
	_, _, fileID, err := fromRef(up.Ref)
	if err != nil {
		return err
	}
	var b []byte
	if err := s.retry.Do(ctx, func(ctx context.Context) error {
		file, err := s.bot.GetFile(tgbot.FileConfig{FileID: fileID})
		if err != nil {
			return fmt.Errorf("tgstore: couldn't get link of %s: %w", name, err)
		}
		b, err = s.fetch(ctx, name, file.Link(s.bot.Token))
		if err != nil {
			return err
		}
		if up.Size > 0 && int64(len(b)) != up.Size {
			return fmt.Errorf("tgstore: %s has %d bytes; want %d", name, len(b), up.Size)
		}
		return nil
	}); err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("tgstore: couldn't write %s: %w", path, err)
	}
	return nil
}

func (s *Store) fetch(ctx context.Context, name, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("tgstore: couldn't create request for %s: %w", name, err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tgstore: couldn't download %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("tgstore: couldn't download %s: status %d", name, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tgstore: couldn't read %s: %w", name, err)
	}
	return b, nil
}

// Delete removes the message holding the handle. Unknown names are ignored.
func (s *Store) Delete(ctx context.Context, name string) error {
	up, err := s.uploads.GetUpload(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tgstore: couldn't find %s: %w", name, err)
	}
	chat, msgID, _, err := fromRef(up.Ref)
	if err != nil {
		return err
	}
	if _, err = s.bot.DeleteMessage(tgbot.DeleteMessageConfig{
		ChatID:    chat,
		MessageID: msgID,
	}); err != nil {
		return fmt.Errorf("tgstore: couldn't delete message of %s: %w", name, err)
	}
	if err := s.uploads.DeleteUpload(ctx, name); err != nil {
		return fmt.Errorf("tgstore: couldn't forget %s: %w", name, err)
	}
	return nil
}

// toRef encodes the location of an uploaded handle as chat/message/file.
func toRef(chat int64, msgID int, fileID string) string {
	return fmt.Sprintf("%d/%d/%s", chat, msgID, fileID)
}

func fromRef(ref string) (int64, int, string, error) {
	split := strings.SplitN(ref, "/", 3)
	if len(split) != 3 || split[2] == "" {
		return 0, 0, "", fmt.Errorf("tgstore: invalid ref %q", ref)
	}
	chat, err := strconv.ParseInt(split[0], 10, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("tgstore: invalid chat in ref %q: %w", ref, err)
	}
	msgID, err := strconv.Atoi(split[1])
	if err != nil {
		return 0, 0, "", fmt.Errorf("tgstore: invalid message in ref %q: %w", ref, err)
	}
	return chat, msgID, split[2], nil
}
