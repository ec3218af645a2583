package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agrobid/agrobid/internal/domain/validate"
	"github.com/agrobid/agrobid/pkg/auth"
	"github.com/agrobid/agrobid/pkg/database"
)

type stubTx struct {
	commits   int
	rollbacks int
}

func (t *stubTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *stubTx) Commit(ctx context.Context) error          { t.commits++; return nil }
func (t *stubTx) Rollback(ctx context.Context) error        { t.rollbacks++; return nil }
func (t *stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *stubTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *stubTx) Conn() *pgx.Conn                                               { return nil }

type stubTxManager struct {
	tx *stubTx
}

func (m *stubTxManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	m.tx = &stubTx{}
	return m.tx, nil
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateUser(ctx context.Context, tx database.DBTX, user *User) error {
	args := m.Called(ctx, tx, user)
	return args.Error(0)
}

func (m *MockRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, user *User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockRepository) List(ctx context.Context, filter ListFilter) ([]*User, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*User), args.Get(1).(int64), args.Error(2)
}

func validRegisterCommand() RegisterCommand {
	return RegisterCommand{
		Name:     "Ramesh Patil",
		Email:    "ramesh@example.com",
		Password: "hunter22",
		Role:     RoleFarmer,
		Phone:    "9876543210",
		Address: Address{
			City:    "Nashik",
			State:   "Maharashtra",
			Pincode: "422001",
		},
		FarmerDetails: &FarmerDetails{FarmSize: 4.5, FarmType: "organic"},
	}
}

func TestService_Register(t *testing.T) {
	repo := new(MockRepository)
	txm := &stubTxManager{}
	svc := NewService(repo, txm)
	cmd := validRegisterCommand()

	repo.On("GetByEmail", mock.Anything, cmd.Email).Return(nil, nil)
	repo.On("CreateUser", mock.Anything, mock.Anything, mock.AnythingOfType("*users.User")).Return(nil)

	user, err := svc.Register(context.Background(), cmd)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, RoleFarmer, user.Role)
	assert.True(t, user.Active)
	assert.Equal(t, "India", user.Address.Country)
	assert.NotNil(t, user.FarmerDetails)
	assert.Nil(t, user.BuyerDetails)

	// The stored hash verifies against the original password and nothing else.
	ok, err := auth.VerifyPassword(user.PasswordHash, cmd.Password)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = auth.VerifyPassword(user.PasswordHash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, txm.tx.commits)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, &stubTxManager{})
	cmd := validRegisterCommand()

	repo.On("GetByEmail", mock.Anything, cmd.Email).Return(&User{ID: uuid.New()}, nil)

	_, err := svc.Register(context.Background(), cmd)

	assert.ErrorIs(t, err, ErrUserAlreadyExists)
	repo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Register_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterCommand)
	}{
		{name: "name too short", mutate: func(cmd *RegisterCommand) { cmd.Name = "R" }},
		{name: "bad email", mutate: func(cmd *RegisterCommand) { cmd.Email = "not-an-email" }},
		{name: "short password", mutate: func(cmd *RegisterCommand) { cmd.Password = "abc" }},
		{name: "unknown role", mutate: func(cmd *RegisterCommand) { cmd.Role = Role("admin") }},
		{name: "bad phone", mutate: func(cmd *RegisterCommand) { cmd.Phone = "12345" }},
		{name: "bad pincode", mutate: func(cmd *RegisterCommand) { cmd.Address.Pincode = "42" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := NewService(repo, &stubTxManager{})
			cmd := validRegisterCommand()
			tt.mutate(&cmd)

			_, err := svc.Register(context.Background(), cmd)

			var verr *validate.Error
			assert.ErrorAs(t, err, &verr)
			repo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
		})
	}
}

func activeUser(password string) *User {
	hash, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return &User{
		ID:           uuid.New(),
		Name:         "Ramesh Patil",
		Email:        "ramesh@example.com",
		PasswordHash: hash,
		Role:         RoleFarmer,
		Active:       true,
	}
}

func TestService_Login(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, &stubTxManager{})
	user := activeUser("hunter22")

	repo.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)
	repo.On("Update", mock.Anything, user).Return(nil)

	got, err := svc.Login(context.Background(), user.Email, "hunter22")

	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	require.NotNil(t, got.LastLogin)
}

func TestService_Login_Failures(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, &stubTxManager{})
		repo.On("GetByEmail", mock.Anything, "nobody@example.com").Return(nil, nil)

		_, err := svc.Login(context.Background(), "nobody@example.com", "whatever")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, &stubTxManager{})
		user := activeUser("hunter22")
		repo.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)

		_, err := svc.Login(context.Background(), user.Email, "hunter23")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("deactivated account", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, &stubTxManager{})
		user := activeUser("hunter22")
		user.Active = false
		repo.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)

		_, err := svc.Login(context.Background(), user.Email, "hunter22")

		assert.ErrorIs(t, err, ErrAccountDeactivated)
	})
}

func TestService_UpdateProfile(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, &stubTxManager{})
	user := activeUser("hunter22")
	user.Address = Address{City: "Nashik", State: "Maharashtra", Pincode: "422001", Country: "India"}

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	repo.On("Update", mock.Anything, user).Return(nil)

	updated, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID: user.ID,
		Name:   "Ramesh B Patil",
		Phone:  "9123456780",
		Address: &Address{
			City: "Pune", State: "Maharashtra", Pincode: "411037",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Ramesh B Patil", updated.Name)
	assert.Equal(t, "9123456780", updated.Phone)
	assert.Equal(t, "Pune", updated.Address.City)
	// Country carries over when the new address omits it.
	assert.Equal(t, "India", updated.Address.Country)
}

func TestService_UpdateProfile_IgnoresMismatchedDetails(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, &stubTxManager{})
	user := activeUser("hunter22") // a farmer

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	repo.On("Update", mock.Anything, user).Return(nil)

	updated, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID:       user.ID,
		BuyerDetails: &BuyerDetails{BusinessName: "Fresh Mart"},
	})

	require.NoError(t, err)
	assert.Nil(t, updated.BuyerDetails)
}

func TestService_ChangePassword(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, &stubTxManager{})
	user := activeUser("hunter22")

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	repo.On("Update", mock.Anything, user).Return(nil)

	err := svc.ChangePassword(context.Background(), user.ID, "hunter22", "correcthorse")

	require.NoError(t, err)
	ok, err := auth.VerifyPassword(user.PasswordHash, "correcthorse")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_ChangePassword_WrongCurrent(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, &stubTxManager{})
	user := activeUser("hunter22")
	before := user.PasswordHash

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	err := svc.ChangePassword(context.Background(), user.ID, "wrong", "correcthorse")

	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, before, user.PasswordHash)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestService_GetPublic_HidesDeactivated(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, &stubTxManager{})
	user := activeUser("hunter22")
	user.Active = false

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	_, err := svc.GetPublic(context.Background(), user.ID)

	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestService_Deactivate(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, &stubTxManager{})
	user := activeUser("hunter22")

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	repo.On("Update", mock.Anything, user).Return(nil)

	err := svc.Deactivate(context.Background(), user.ID)

	require.NoError(t, err)
	assert.False(t, user.Active)
	assert.False(t, user.UpdatedAt.IsZero())
}
