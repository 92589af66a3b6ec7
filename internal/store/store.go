package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"go-hangar/internal/database"
	"go-hangar/internal/models"

	log "github.com/sirupsen/logrus"
)

// Key prefixes. One keyspace per record kind, same database.
const (
	downloadPrefix = "download:"
	cavePrefix     = "cave:"
	gamePrefix     = "game:"
)

// Store provides typed access to the launcher's persistent records. Writes
// are independent last-writer-wins puts; there are no cross-record
// transactions.
type Store struct {
	db *database.DB
}

// New wraps an open database in a typed store.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// SaveDownload persists a download item, overwriting any previous state.
func (s *Store) SaveDownload(item *models.DownloadItem) error {
	if item.ID == "" {
		return errors.New("cannot save download item with empty id")
	}
	return s.put(downloadPrefix+item.ID, item)
}

// GetDownload loads a single download item. Returns database.ErrNotFound
// if it does not exist.
func (s *Store) GetDownload(id string) (*models.DownloadItem, error) {
	var item models.DownloadItem
	if err := s.get(downloadPrefix+id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteDownload removes a download item. Deleting an absent item is not
// an error.
func (s *Store) DeleteDownload(id string) error {
	err := s.db.Delete([]byte(downloadPrefix + id))
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	return err
}

// AllDownloads returns every persisted download item. Undecodable records
// are logged and skipped rather than failing the whole scan.
func (s *Store) AllDownloads() ([]*models.DownloadItem, error) {
	var items []*models.DownloadItem
	err := s.db.Scan([]byte(downloadPrefix), func(key, value []byte) error {
		var item models.DownloadItem
		if err := json.Unmarshal(value, &item); err != nil {
			log.WithError(err).Warnf("Skipping undecodable download record %s", string(key))
			return nil
		}
		items = append(items, &item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning downloads: %w", err)
	}
	return items, nil
}

// SaveCave persists a cave record.
func (s *Store) SaveCave(cave *models.Cave) error {
	if cave.ID == "" {
		return errors.New("cannot save cave with empty id")
	}
	return s.put(cavePrefix+cave.ID, cave)
}

// GetCave loads a single cave. Returns database.ErrNotFound if absent.
func (s *Store) GetCave(id string) (*models.Cave, error) {
	var cave models.Cave
	if err := s.get(cavePrefix+id, &cave); err != nil {
		return nil, err
	}
	return &cave, nil
}

// DeleteCave removes a cave record.
func (s *Store) DeleteCave(id string) error {
	err := s.db.Delete([]byte(cavePrefix + id))
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	return err
}

// AllCaves returns every persisted cave.
func (s *Store) AllCaves() ([]*models.Cave, error) {
	var caves []*models.Cave
	err := s.db.Scan([]byte(cavePrefix), func(key, value []byte) error {
		var cave models.Cave
		if err := json.Unmarshal(value, &cave); err != nil {
			log.WithError(err).Warnf("Skipping undecodable cave record %s", string(key))
			return nil
		}
		caves = append(caves, &cave)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning caves: %w", err)
	}
	return caves, nil
}

// CaveForGame returns the cave installed for a game, or nil if none.
func (s *Store) CaveForGame(gameID int64) (*models.Cave, error) {
	caves, err := s.AllCaves()
	if err != nil {
		return nil, err
	}
	for _, cave := range caves {
		if cave.GameID == gameID {
			return cave, nil
		}
	}
	return nil, nil
}

// SaveGame persists a game record.
func (s *Store) SaveGame(game *models.Game) error {
	return s.put(fmt.Sprintf("%s%d", gamePrefix, game.ID), game)
}

// GetGame loads a single game. Returns database.ErrNotFound if absent.
func (s *Store) GetGame(id int64) (*models.Game, error) {
	var game models.Game
	if err := s.get(fmt.Sprintf("%s%d", gamePrefix, id), &game); err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *Store) put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling record %s: %w", key, err)
	}
	return s.db.Put([]byte(key), data)
}

func (s *Store) get(key string, v interface{}) error {
	data, err := s.db.Get([]byte(key))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshalling record %s: %w", key, err)
	}
	return nil
}
