// Package models содержит доменные структуры для квот на публикацию объявлений
// и платных выделений объявлений, а также типы событий и вспомогательные
// структуры для приёма данных из внешних источников (JSON-запросы, очереди).
package models

import "time"

// EntitlementStatus описывает состояние квоты. Единственные допустимые
// переходы: Active -> Exhausted (при списании последней единицы)
// и Active -> Expired (при истечении срока). Оба состояния терминальные.
type EntitlementStatus string

const (
	// EntitlementStatusActive квота действует, единицы можно списывать.
	EntitlementStatusActive EntitlementStatus = "active"
	// EntitlementStatusExhausted все единицы списаны.
	EntitlementStatusExhausted EntitlementStatus = "exhausted"
	// EntitlementStatusExpired срок действия истёк, остаток сгорает.
	EntitlementStatusExpired EntitlementStatus = "expired"
)

// EntitlementSource источник выдачи квоты.
type EntitlementSource string

const (
	// SourceFreeGrant бесплатная квота, выдаваемая при регистрации.
	SourceFreeGrant EntitlementSource = "free_grant"
	// SourcePurchasedPackage квота из купленного пакета размещений.
	SourcePurchasedPackage EntitlementSource = "purchased_package"
)

// Entitlement представляет собой квоту на публикацию объявлений.
// Записи никогда не удаляются: исчерпанные и истёкшие строки
// остаются в хранилище как история.
type Entitlement struct {
	ID             int64             // Идентификатор записи
	OwnerUID       string            // UID владельца квоты
	Source         EntitlementSource // Источник выдачи
	PackageID      *string           // Идентификатор пакета, если квота куплена
	TotalUnits     int               // Выданное количество единиц
	RemainingUnits int               // Остаток, 0..TotalUnits
	IssuedAt       time.Time         // Дата выдачи
	ExpiresAt      time.Time         // Дата окончания действия
	Status         EntitlementStatus // Текущее состояние
	IdempotencyKey string            // Ключ идемпотентности выдачи
}

// ConsumeResult результат атомарного списания одной единицы квоты.
type ConsumeResult struct {
	EntitlementID  int64 // Квота, с которой произошло списание
	RemainingUnits int   // Остаток после списания
	Exhausted      bool  // true, если списана последняя единица
}
