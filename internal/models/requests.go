package models

// DummyAuthorizeRequest используется для приёма запроса на авторизацию
// создания объявления, прежде чем передать его бизнес-логике.
type DummyAuthorizeRequest struct {
	OwnerUID string `json:"owner_uid" validate:"required,uuid"` // UID владельца
}

// DummyOwnerRequest используется для приёма запроса на регистрацию владельца
// (выдача бесплатной квоты при создании аккаунта).
type DummyOwnerRequest struct {
	OwnerUID string `json:"owner_uid" validate:"required,uuid"` // UID владельца
}
