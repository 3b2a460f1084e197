package subsync

import (
	"context"
	"fmt"

	"github.com/roomshare/roomd/internal/model"
	"github.com/roomshare/roomd/internal/repository"
)

// mysqlStore is the production Store: one transaction over the room and
// subscriber repositories.
type mysqlStore struct {
	rooms *repository.RoomRepo
	subs  *repository.SubscriberRepo
}

// NewMySQLStore returns a Store over the given repositories.
func NewMySQLStore(rooms *repository.RoomRepo, subs *repository.SubscriberRepo) Store {
	return &mysqlStore{rooms: rooms, subs: subs}
}

func (s *mysqlStore) ReplaceSubscribers(ctx context.Context, records []model.SubscriberRecord, owners []string) error {
	tx, err := s.rooms.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.rooms.ClearSubRoomFlagsTx(ctx, tx); err != nil {
		return fmt.Errorf("clear sub-room flags: %w", err)
	}
	if err := s.subs.ReplaceAllTx(ctx, tx, records); err != nil {
		return fmt.Errorf("replace rows: %w", err)
	}
	if err := s.rooms.MarkSubRoomsTx(ctx, tx, owners); err != nil {
		return fmt.Errorf("mark sub rooms: %w", err)
	}
	return tx.Commit()
}
