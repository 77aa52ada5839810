package models

// Request models
type SearchBooksQuery struct {
	Title  string `form:"title"`
	Author string `form:"author"`
}

type BookURI struct {
	BookID int64 `uri:"book_id" binding:"required,gt=0"`
}

type WishlistURI struct {
	UserName string `uri:"user_name" binding:"required"`
	BookID   int64  `uri:"book_id" binding:"required,gt=0"`
}

type CreateUserURI struct {
	UserName string `uri:"user_name" binding:"required"`
	UserType string `uri:"user_type" binding:"required,usertype"`
}

type AmountReportURI struct {
	Status string `uri:"status" binding:"required,bookstatus"`
}

// WishlistOutcome tells the caller what an add-to-wishlist call did
type WishlistOutcome string

const (
	WishlistCreated           WishlistOutcome = "created"
	WishlistAlreadyWishlisted WishlistOutcome = "already_wishlisted"
	WishlistHeldByOther       WishlistOutcome = "wishlisted_by_other"
)

// Response models
type WishlistResult struct {
	Outcome WishlistOutcome `json:"outcome"`
	Message string          `json:"message"`
}

type CreateUserResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

type AmountReportRow struct {
	BookID     int64  `json:"book_id"`
	Title      string `json:"title"`
	DaysRented int    `json:"days_rented"`
}

type LoadResult struct {
	Kind     string `json:"kind"`
	Inserted int    `json:"inserted"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
