package models

// OutcomeKind вид результата завершённой покупки.
type OutcomeKind string

const (
	// OutcomePackageGrant покупка пакета размещений.
	OutcomePackageGrant OutcomeKind = "package_grant"
	// OutcomeFeatureUpgrade покупка платного выделения объявления.
	OutcomeFeatureUpgrade OutcomeKind = "feature_upgrade"
)

// PurchaseOutcome результат покупки. Заполняемые поля зависят от Kind:
// для package_grant значимы Units и DurationDays, для feature_upgrade —
// ResourceID, FeatureType и DurationDays.
type PurchaseOutcome struct {
	Kind         OutcomeKind `json:"kind" validate:"required"`
	Units        int         `json:"units,omitempty"`
	DurationDays int         `json:"duration_days" validate:"required,gt=0"`
	ResourceID   int64       `json:"resource_id,omitempty"`
	FeatureType  string      `json:"feature_type,omitempty"`
	PackageID    string      `json:"package_id,omitempty"`
}

// PurchaseCompleted входящее событие платёжного шлюза о завершённой покупке.
// Обрабатывается не более одного раза на каждый PaymentID.
type PurchaseCompleted struct {
	OwnerUID  string          `json:"owner_uid" validate:"required,uuid"`
	PaymentID string          `json:"payment_id" validate:"required"`
	Outcome   PurchaseOutcome `json:"outcome" validate:"required"`
}

// FeatureExpired исходящее событие об истечении выделения. Потребляется
// хранилищем объявлений для снятия флага отображения.
type FeatureExpired struct {
	ResourceID  int64  `json:"resource_id"`
	FeatureType string `json:"feature_type"`
}

// EntitlementExpired исходящее событие об истечении квоты. Остаток единиц
// на момент истечения сгорает.
type EntitlementExpired struct {
	OwnerUID       string `json:"owner_uid"`
	EntitlementID  int64  `json:"entitlement_id"`
	RemainingUnits int    `json:"remaining_units"`
	Source         string `json:"source"`
}

// EntitlementExhausted исходящее событие о списании последней единицы квоты.
// Потребляется сервисом уведомлений для предложения новой покупки.
type EntitlementExhausted struct {
	OwnerUID string `json:"owner_uid"`
}
