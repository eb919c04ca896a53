package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// Repository defines persistence operations for orders, payments, and vendors.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderByReference(ctx context.Context, reference string) (*models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	FindExpiredOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindPaymentBySession(ctx context.Context, provider enums.PaymentProvider, sessionID string) (*models.Payment, error)
	FindPaymentByProviderPaymentID(ctx context.Context, provider enums.PaymentProvider, paymentID string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, paymentID uuid.UUID, updates map[string]any) error
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error)
}
