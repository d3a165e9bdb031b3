package repository

import "errors"

var (
	// ErrNoEligibleEntitlement означает, что у владельца нет квоты,
	// пригодной для списания. Это ожидаемый исход, а не сбой:
	// вызывающая сторона показывает пользователю "требуется покупка".
	ErrNoEligibleEntitlement = errors.New("no eligible entitlement")

	// ErrDuplicateGrant означает повторную выдачу по уже обработанному
	// ключу идемпотентности. Существующая запись возвращается без изменений.
	ErrDuplicateGrant = errors.New("duplicate grant")

	// ErrDuplicateActivation означает повторную доставку уже применённого
	// платежа за выделение. Срок действия повторно не продлевается.
	ErrDuplicateActivation = errors.New("duplicate activation")

	// ErrInvalidGrant означает некорректные параметры выдачи квоты.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrConcurrentModification означает кратковременный конфликт
	// конкурирующих обновлений одной строки.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrActivationNotFound означает отсутствие активного выделения
	// для пары (объявление, вид выделения).
	ErrActivationNotFound = errors.New("activation not found")
)
