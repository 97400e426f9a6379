package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/emrgen/linkfeed/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db: db,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func (g *GormStore) CreateUser(ctx context.Context, user *model.User) error {
	return translate(g.db.WithContext(ctx).Create(user).Error)
}

func (g *GormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (g *GormStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := g.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (g *GormStore) CreateLink(ctx context.Context, link *model.Link) error {
	return translate(g.db.WithContext(ctx).Omit("PostedBy", "Votes").Create(link).Error)
}

// withLink preloads what a link result carries: its poster and its votes
// in the order they were cast.
func withLink(db *gorm.DB, prefix string) *gorm.DB {
	return db.
		Preload(prefix+"PostedBy").
		Preload(prefix+"Votes", func(db *gorm.DB) *gorm.DB {
			return db.Order("votes.created_at asc")
		}).
		Preload(prefix + "Votes.User")
}

func (g *GormStore) GetLink(ctx context.Context, id string) (*model.Link, error) {
	var link model.Link
	err := withLink(g.db.WithContext(ctx), "").Where("id = ?", id).First(&link).Error
	if err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (g *GormStore) ListLinks(ctx context.Context, opts ListLinksOptions) ([]*model.Link, int64, error) {
	query := func() *gorm.DB {
		db := g.db.WithContext(ctx).Model(&model.Link{})
		if opts.Filter != "" {
			pattern := "%" + strings.ToLower(opts.Filter) + "%"
			db = db.Where("LOWER(description) LIKE ? OR LOWER(url) LIKE ?", pattern, pattern)
		}
		return db
	}

	var count int64
	if err := query().Count(&count).Error; err != nil {
		return nil, 0, err
	}

	order := "links.created_at desc"
	if opts.Oldest {
		order = "links.created_at asc"
	}
	page := withLink(query(), "").Order(order).Offset(opts.Skip)
	if opts.Take > 0 {
		page = page.Limit(opts.Take)
	}

	var links []*model.Link
	if err := page.Find(&links).Error; err != nil {
		return nil, 0, err
	}

	return links, count, nil
}

func (g *GormStore) CreateVote(ctx context.Context, vote *model.Vote) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		err := tx.Model(&model.Vote{}).Where("link_id = ? AND user_id = ?", vote.LinkID, vote.UserID).Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyExists
		}
		return translate(tx.Omit("Link", "User").Create(vote).Error)
	})
}

func (g *GormStore) GetVote(ctx context.Context, id string) (*model.Vote, error) {
	var vote model.Vote
	err := withLink(g.db.WithContext(ctx).Preload("User"), "Link.").
		Preload("Link").
		Where("id = ?", id).
		First(&vote).Error
	if err != nil {
		return nil, translate(err)
	}
	return &vote, nil
}

func (g *GormStore) SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) error {
	logrus.Debugf("saving cache snapshot %s for %s: %d records", snapshot.ID, snapshot.Endpoint, snapshot.Size)
	return g.db.WithContext(ctx).Create(snapshot).Error
}

func (g *GormStore) LatestSnapshot(ctx context.Context, endpoint string) (*model.Snapshot, error) {
	var snapshot model.Snapshot
	err := g.db.WithContext(ctx).Where("endpoint = ?", endpoint).Order("created_at desc").First(&snapshot).Error
	if err != nil {
		return nil, translate(err)
	}
	return &snapshot, nil
}

func (g *GormStore) ListSnapshots(ctx context.Context, endpoint string) ([]*model.Snapshot, error) {
	var snapshots []*model.Snapshot
	err := g.db.WithContext(ctx).
		Select("id", "created_at", "endpoint", "compression", "size").
		Where("endpoint = ?", endpoint).
		Order("created_at desc").
		Find(&snapshots).Error
	return snapshots, err
}

func (g *GormStore) DeleteSnapshots(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Where("id in (?)", ids).Delete(&model.Snapshot{}).Error
}

func (g *GormStore) DeleteSnapshotsBefore(ctx context.Context, t time.Time) (int64, error) {
	res := g.db.WithContext(ctx).Where("created_at < ?", t).Delete(&model.Snapshot{})
	return res.RowsAffected, res.Error
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx})
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrAlreadyExists
	}
	return err
}
