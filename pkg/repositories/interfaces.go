package repositories

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
)

// RequestRepo defines the interface for data request repository operations
type RequestRepo interface {
	Create(ctx context.Context, request *models.DataRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataRequest, error)
	ListSent(ctx context.Context, role string) ([]models.DataRequest, error)
	ListReceived(ctx context.Context, role string) ([]models.DataRequest, error)
	Decide(ctx context.Context, id uuid.UUID, target models.RequestStatus, note *string, decidedAt time.Time) (*models.DataRequest, error)
	DeletePending(ctx context.Context, id uuid.UUID) error
	ListExpirable(ctx context.Context, olderThan time.Time, limit int) ([]models.DataRequest, error)
}

// ContractRepo defines the interface for data contract repository operations
type ContractRepo interface {
	Create(ctx context.Context, contract *models.DataContract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataContract, error)
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.DataContract, error)
	ListByRole(ctx context.Context, role string) ([]models.DataContract, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []models.ContractStatus, target models.ContractStatus, terminatedAt *time.Time) (*models.DataContract, error)
}

// TransferRepo defines the interface for data transfer repository operations
type TransferRepo interface {
	Create(ctx context.Context, transfer *models.DataTransfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataTransfer, error)
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.DataTransfer, error)
	ListByRole(ctx context.Context, role string) ([]models.DataTransfer, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []models.TransferStatus, target models.TransferStatus, update TransferStatusUpdate) (*models.DataTransfer, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, bytes int64) (*models.DataTransfer, error)
	AppendLog(ctx context.Context, id uuid.UUID, entry models.TransferLogEntry) error
	CancelForContract(ctx context.Context, contractID uuid.UUID, entry models.TransferLogEntry) (int64, error)
}

// TransferStatusUpdate carries the optional fields set alongside a status change
type TransferStatusUpdate struct {
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time
	FailureReason    *string
	BytesTransferred *int64
	LogEntry         *models.TransferLogEntry
}

// PublicationRepo defines the interface for data publication repository operations
type PublicationRepo interface {
	Create(ctx context.Context, publication *models.DataPublication) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataPublication, error)
	List(ctx context.Context) ([]models.DataPublication, error)
	ListByPublisher(ctx context.Context, role string) ([]models.DataPublication, error)
	Update(ctx context.Context, publication *models.DataPublication) error
	Delete(ctx context.Context, id uuid.UUID) error
}
