// Package mongostore keeps transactions in a MongoDB collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
)

const Collection = "transactions"

type Store struct {
	coll *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection(Collection)}
}

var _ transaction.Repository = (*Store)(nil)

type document struct {
	ID                string                `bson:"_id"`
	PhoneNumber       string                `bson:"phone_number"`
	Amount            primitive.Decimal128  `bson:"amount"`
	UserID            *string               `bson:"user_id,omitempty"`
	Status            string                `bson:"status"`
	CheckoutRequestID string                `bson:"checkout_request_id"`
	MerchantRequestID string                `bson:"merchant_request_id"`
	Receipt           *string               `bson:"mpesa_receipt,omitempty"`
	ResultCode        *int                  `bson:"result_code,omitempty"`
	ResultDesc        string                `bson:"result_desc"`
	ConfirmedAmount   *primitive.Decimal128 `bson:"confirmed_amount,omitempty"`
	CreatedAt         time.Time             `bson:"created_at"`
	UpdatedAt         time.Time             `bson:"updated_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}

func (d *document) toTransaction() (*transaction.Transaction, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing id %q: %w", d.ID, err)
	}

	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount: %w", err)
	}

	tx := &transaction.Transaction{
		ID:                id,
		PhoneNumber:       d.PhoneNumber,
		Amount:            amount,
		UserID:            d.UserID,
		Status:            transaction.Status(d.Status),
		CheckoutRequestID: d.CheckoutRequestID,
		MerchantRequestID: d.MerchantRequestID,
		Receipt:           d.Receipt,
		ResultCode:        d.ResultCode,
		ResultDesc:        d.ResultDesc,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}

	if d.ConfirmedAmount != nil {
		confirmed, err := fromDecimal128(*d.ConfirmedAmount)
		if err != nil {
			return nil, fmt.Errorf("parsing confirmed amount: %w", err)
		}

		tx.ConfirmedAmount = &confirmed
	}

	return tx, nil
}

// EnsureIndexes creates the unique checkout index the store relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "checkout_request_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	return nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx *transaction.Transaction) error {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	id := uuid.New()

	doc := document{
		ID:                id.String(),
		PhoneNumber:       tx.PhoneNumber,
		Amount:            amount,
		UserID:            tx.UserID,
		Status:            string(tx.Status),
		CheckoutRequestID: tx.CheckoutRequestID,
		MerchantRequestID: tx.MerchantRequestID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("creating transaction: %w", transaction.ErrDuplicateCheckout)
		}

		return fmt.Errorf("creating transaction: %w", err)
	}

	tx.ID = id
	tx.CreatedAt = now
	tx.UpdatedAt = now

	return nil
}

func (s *Store) findOne(ctx context.Context, filter bson.D) (*transaction.Transaction, error) {
	var doc document
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, transaction.ErrNotFound
		}

		return nil, err
	}

	return doc.toTransaction()
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	tx, err := s.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil && !errors.Is(err, transaction.ErrNotFound) {
		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, err
}

func (s *Store) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	tx, err := s.findOne(ctx, bson.D{{Key: "checkout_request_id", Value: checkoutRequestID}})
	if err != nil && !errors.Is(err, transaction.ErrNotFound) {
		return nil, fmt.Errorf("finding transaction by checkout request id: %w", err)
	}

	return tx, err
}

// UpdateStatus matches on status=pending so the write is a compare-and-set.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, res transaction.Resolution) error {
	set := bson.D{
		{Key: "status", Value: string(res.Status)},
		{Key: "result_code", Value: res.ResultCode},
		{Key: "result_desc", Value: res.ResultDesc},
		{Key: "updated_at", Value: time.Now().UTC()},
	}

	if res.Receipt != nil {
		set = append(set, bson.E{Key: "mpesa_receipt", Value: *res.Receipt})
	}

	if res.ConfirmedAmount != nil {
		confirmed, err := toDecimal128(*res.ConfirmedAmount)
		if err != nil {
			return fmt.Errorf("updating status: %w", err)
		}

		set = append(set, bson.E{Key: "confirmed_amount", Value: confirmed})
	}

	filter := bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "status", Value: string(transaction.StatusPending)},
	}

	result, err := s.coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	if result.MatchedCount == 0 {
		return transaction.ErrAlreadyResolved
	}

	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := bson.D{}

	if filter.Status != nil {
		query = append(query, bson.E{Key: "status", Value: string(*filter.Status)})
	}

	if filter.UserID != nil {
		query = append(query, bson.E{Key: "user_id", Value: *filter.UserID})
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(filter.Limit))

	cur, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}

	txs := make([]*transaction.Transaction, 0, len(docs))

	for i := range docs {
		tx, err := docs[i].toTransaction()
		if err != nil {
			return nil, fmt.Errorf("decoding transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	return txs, nil
}
