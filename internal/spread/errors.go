package spread

import "errors"

var (
	// ErrConfiguration - неверные входные данные при создании движка или элемента очереди.
	// Никогда не исправляется молча.
	ErrConfiguration = errors.New("spread: invalid configuration")

	// ErrInvariantViolation - логическая ошибка: позиция одновременно в области и на границе,
	// либо сила вне допустимого диапазона.
	ErrInvariantViolation = errors.New("spread: invariant violation")

	// ErrCorruptSnapshot - сериализованный снимок не удалось разобрать
	ErrCorruptSnapshot = errors.New("spread: corrupt snapshot")
)
