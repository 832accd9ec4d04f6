package user

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go-storefront/apps/user/model"
	"go-storefront/pkg/response"
	"go-storefront/pkg/tracer"
)

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// AvatarPath is where a profile's uploaded avatar named filename is stored.
func AvatarPath(profileID uint, filename string) string {
	return fmt.Sprintf("profiles/avatars/profile_%d/%s", profileID, filename)
}

func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// ReplaceAvatar stores r as the user's new avatar and points the profile at
// it. The previous file is deleted only after the new one is saved and
// recorded, and never when it is the shared default. A file uploaded under
// the current avatar's name is staged and moved over the live file only
// once the profile is updated.
func (s *Service) ReplaceAvatar(ctx context.Context, userID uint, filename string, r io.Reader) (_ *ProfileView, err error) {
	ctx, span := tracer.Start(ctx, "user.ReplaceAvatar")
	defer func() { tracer.End(span, err) }()

	name := cleanFilename(filename)
	if name == "" {
		return nil, &ValidationError{Fields: response.FieldErrors{"avatar": {"No file was submitted."}}}
	}

	br := bufio.NewReader(r)
	head, _ := br.Peek(512)
	if len(head) == 0 {
		return nil, &ValidationError{Fields: response.FieldErrors{"avatar": {"The submitted file is empty."}}}
	}
	if !imageTypes[http.DetectContentType(head)] {
		return nil, &ValidationError{Fields: response.FieldErrors{"avatar": {"Upload a valid image. The file you uploaded was either not an image or a corrupted image."}}}
	}

	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	var old *model.Avatar
	if p.Avatar != nil {
		prev := *p.Avatar
		old = &prev
	}

	src := AvatarPath(p.ID, name)
	staged := src
	if old != nil && old.Src == src {
		staged = AvatarPath(p.ID, ".upload-"+uuid.NewString()+"-"+name)
	}
	if err := s.media.Save(ctx, staged, br); err != nil {
		return nil, fmt.Errorf("save avatar: %w", err)
	}

	alt := "Avatar " + p.FullName
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.Avatar == nil {
			a := model.Avatar{Src: src, Alt: alt}
			if err := tx.Create(&a).Error; err != nil {
				return fmt.Errorf("create avatar: %w", err)
			}
			if err := tx.Model(p).Update("avatar_id", a.ID).Error; err != nil {
				return fmt.Errorf("bind avatar: %w", err)
			}
			p.AvatarID, p.Avatar = &a.ID, &a
			return nil
		}
		if err := tx.Model(p.Avatar).Updates(map[string]any{"src": src, "alt": alt}).Error; err != nil {
			return fmt.Errorf("update avatar: %w", err)
		}
		p.Avatar.Src, p.Avatar.Alt = src, alt
		return nil
	})
	if err != nil {
		if derr := s.media.Delete(ctx, staged); derr != nil {
			log.Warn().Err(derr).Str("path", staged).Msg("remove orphaned avatar")
		}
		return nil, err
	}
	if staged != src {
		if err := s.media.Rename(ctx, staged, src); err != nil {
			if derr := s.media.Delete(ctx, staged); derr != nil {
				log.Warn().Err(derr).Str("path", staged).Msg("remove staged avatar")
			}
			return nil, fmt.Errorf("move avatar into place: %w", err)
		}
	}

	if old != nil && !old.IsDefault() && old.Src != src {
		if err := s.media.Delete(ctx, old.Src); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("path", old.Src).Msg("remove previous avatar")
		}
	}

	log.Info().Uint("user_id", userID).Str("src", src).Msg("avatar replaced")
	return s.view(p), nil
}
