package messaging

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessagingService is the thread-level surface the automation engine writes
// through. The interactive chat API lives in the trainer web app, not here.
type MessagingService interface {
	// GetOrCreateThread returns the org's thread for a client, creating it on
	// first use.
	GetOrCreateThread(ctx context.Context, orgID, clientID primitive.ObjectID) (*MessageThread, error)
	AppendMessage(ctx context.Context, orgID, threadID primitive.ObjectID, senderType SenderType, body string) error
}

type MessagingServiceImpl struct {
	Repo MessagingRepository
}

func NewMessagingService(repo MessagingRepository) MessagingService {
	return &MessagingServiceImpl{Repo: repo}
}

func (s *MessagingServiceImpl) GetOrCreateThread(ctx context.Context, orgID, clientID primitive.ObjectID) (*MessageThread, error) {
	thread, err := s.Repo.GetThreadByClient(ctx, orgID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up thread: %w", err)
	}
	if thread != nil {
		return thread, nil
	}

	thread = &MessageThread{OrgID: orgID, ClientID: clientID}
	if err := s.Repo.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, nil
}

func (s *MessagingServiceImpl) AppendMessage(ctx context.Context, orgID, threadID primitive.ObjectID, senderType SenderType, body string) error {
	return s.Repo.InsertMessage(ctx, &Message{
		OrgID:      orgID,
		ThreadID:   threadID,
		SenderType: senderType,
		Body:       body,
	})
}
