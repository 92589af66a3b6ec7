package index

import (
	"log"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"

	"go-hangar/internal/models"
)

const defaultIndexPath = "hangar.bleve"

// Entry is an installed game as indexed for library search. All fields
// are searchable via their lowercase JSON tag names (e.g. the query
// '+title:spelunky' or '+installerKind:archive').
type Entry struct {
	ID            string    `json:"id"` // cave id
	GameID        int64     `json:"gameId"`
	Title         string    `json:"title"`
	ShortText     string    `json:"shortText,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	InstallFolder string    `json:"installFolder,omitempty"`
	InstallerKind string    `json:"installerKind,omitempty"`
	InstalledSize int64     `json:"installedSize,omitempty"`
	InstalledAt   time.Time `json:"installedAt,omitempty"`
	LastTouchedAt time.Time `json:"lastTouchedAt,omitempty"`
}

// EntryForCave flattens a cave into its indexed form.
func EntryForCave(cave *models.Cave, installerKind string) Entry {
	e := Entry{
		ID:            cave.ID,
		GameID:        cave.GameID,
		InstallFolder: cave.InstallFolder,
		InstallerKind: installerKind,
		InstalledSize: cave.InstalledSize,
		InstalledAt:   cave.InstalledAt,
		LastTouchedAt: cave.LastTouchedAt,
	}
	if cave.Game != nil {
		e.Title = cave.Game.Title
		e.ShortText = cave.Game.ShortText
		e.Tags = cave.Game.Tags
	}
	return e
}

// OpenOrCreateIndex opens an existing bleve index or creates a new one if
// it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Printf("Creating new library index at: %s", indexPath)
		mapping := bleve.NewIndexMapping()
		idx, err = bleve.New(indexPath, mapping)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return idx, nil
}

// IndexCave adds or updates a cave in the library index.
func IndexCave(idx bleve.Index, cave *models.Cave, installerKind string) error {
	entry := EntryForCave(cave, installerKind)
	return idx.Index(entry.ID, entry)
}

// RemoveCave deletes a cave from the library index.
func RemoveCave(idx bleve.Index, caveID string) error {
	return idx.Delete(caveID)
}

// Search performs a query-string search against the library index.
func Search(idx bleve.Index, query string) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	searchRequest.Fields = []string{"*"}
	return idx.Search(searchRequest)
}

// DeleteIndex removes the index directory. Use with caution!
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	return os.RemoveAll(indexPath)
}
