package models

import (
	"errors"
	"time"
)

// ErrInvalidFeatureType возвращается при попытке разобрать неизвестный вид выделения.
var ErrInvalidFeatureType = errors.New("invalid feature type")

// FeatureType закрытый перечень платных выделений объявления.
type FeatureType string

const (
	// FeatureTypePinned объявление закрепляется вверху выдачи.
	FeatureTypePinned FeatureType = "pinned"
	// FeatureTypeUrgent объявление помечается как срочное.
	FeatureTypeUrgent FeatureType = "urgent"
	// FeatureTypeHighlighted объявление подсвечивается в списке.
	FeatureTypeHighlighted FeatureType = "highlighted"
)

// ParseFeatureType проверяет строку на принадлежность к закрытому перечню.
func ParseFeatureType(s string) (FeatureType, error) {
	switch FeatureType(s) {
	case FeatureTypePinned, FeatureTypeUrgent, FeatureTypeHighlighted:
		return FeatureType(s), nil
	}
	return "", ErrInvalidFeatureType
}

// String возвращает строковое представление вида выделения.
func (ft FeatureType) String() string { return string(ft) }

// ActivationStatus состояние выделения: active либо expired (терминальное).
type ActivationStatus string

const (
	// ActivationStatusActive выделение действует.
	ActivationStatusActive ActivationStatus = "active"
	// ActivationStatusExpired срок выделения истёк.
	ActivationStatusExpired ActivationStatus = "expired"
)

// FeatureActivation представляет собой платное выделение объявления,
// ограниченное по времени. Для пары (ResourceID, FeatureType) может
// существовать не более одной активной записи; повторная покупка того же
// вида продлевает срок, а не создаёт дубликат.
type FeatureActivation struct {
	ID              int64            // Идентификатор записи
	ResourceID      int64            // Идентификатор объявления
	FeatureType     FeatureType      // Вид выделения
	ActivatedAt     time.Time        // Дата активации
	ExpiresAt       time.Time        // Дата окончания действия
	Status          ActivationStatus // Текущее состояние
	SourcePaymentID string           // Платёж, создавший запись
}
