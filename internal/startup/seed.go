package startup

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository"
)

// UserSeeder: хранилище пользователей, в которое можно дописать учётные записи.
type UserSeeder interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
}

type seedFile struct {
	Users []struct {
		ID    string     `yaml:"id"`
		Name  string     `yaml:"name"`
		Email string     `yaml:"email"`
		Role  model.Role `yaml:"role"`
	} `yaml:"users"`
}

// SeedUsers создаёт пользователей из YAML-файла; уже существующие пропускаются.
// Возвращает id всех пользователей из файла.
func SeedUsers(ctx context.Context, users UserSeeder, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	ids := make([]string, 0, len(sf.Users))
	for _, su := range sf.Users {
		if su.ID == "" || !su.Role.Valid() {
			return nil, fmt.Errorf("seed file %s: user %q has no id or an unknown role %q", path, su.ID, su.Role)
		}
		ids = append(ids, su.ID)
		_, err := users.GetByID(ctx, su.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("seed lookup %s: %w", su.ID, err)
		}
		u := &model.User{ID: su.ID, Name: su.Name, Email: su.Email, Role: su.Role}
		if err := users.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("seed create %s: %w", su.ID, err)
		}
		logger.Infof("seed: created %s user %s", su.Role, su.ID)
	}
	return ids, nil
}
