package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const createUser = `
INSERT INTO users (email, password_hash, name, plan)
VALUES ($1, $2, $3, $4)
RETURNING id, email, password_hash, name, plan, stripe_customer_id,
          subscription_id, subscription_status, created_at, updated_at
`

// CreateUserParams contains the columns for a new user row.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	Name         string
	Plan         string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser, arg.Email, arg.PasswordHash, arg.Name, arg.Plan)
	return scanUser(row)
}

const getUserByID = `
SELECT id, email, password_hash, name, plan, stripe_customer_id,
       subscription_id, subscription_status, created_at, updated_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByEmail = `
SELECT id, email, password_hash, name, plan, stripe_customer_id,
       subscription_id, subscription_status, created_at, updated_at
FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const getUserByStripeCustomerID = `
SELECT id, email, password_hash, name, plan, stripe_customer_id,
       subscription_id, subscription_status, created_at, updated_at
FROM users
WHERE stripe_customer_id = $1
`

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID sql.NullString) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByStripeCustomerID, stripeCustomerID))
}

const updateUserPlan = `
UPDATE users
SET plan = $2, updated_at = now()
WHERE id = $1
`

// UpdateUserPlanParams updates only the plan tier.
type UpdateUserPlanParams struct {
	ID   uuid.UUID
	Plan string
}

func (q *Queries) UpdateUserPlan(ctx context.Context, arg UpdateUserPlanParams) error {
	_, err := q.db.ExecContext(ctx, updateUserPlan, arg.ID, arg.Plan)
	return err
}

const updateUserStripeCustomer = `
UPDATE users
SET stripe_customer_id = $2, updated_at = now()
WHERE id = $1
`

type UpdateUserStripeCustomerParams struct {
	ID               uuid.UUID
	StripeCustomerID sql.NullString
}

func (q *Queries) UpdateUserStripeCustomer(ctx context.Context, arg UpdateUserStripeCustomerParams) error {
	_, err := q.db.ExecContext(ctx, updateUserStripeCustomer, arg.ID, arg.StripeCustomerID)
	return err
}

const updateUserSubscription = `
UPDATE users
SET plan = $2,
    subscription_status = $3,
    subscription_id = $4,
    updated_at = now()
WHERE id = $1
`

// UpdateUserSubscriptionParams applies a billing event to a user.
type UpdateUserSubscriptionParams struct {
	ID                 uuid.UUID
	Plan               string
	SubscriptionStatus sql.NullString
	SubscriptionID     sql.NullString
}

func (q *Queries) UpdateUserSubscription(ctx context.Context, arg UpdateUserSubscriptionParams) error {
	_, err := q.db.ExecContext(ctx, updateUserSubscription,
		arg.ID, arg.Plan, arg.SubscriptionStatus, arg.SubscriptionID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.Plan,
		&u.StripeCustomerID,
		&u.SubscriptionID,
		&u.SubscriptionStatus,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}
