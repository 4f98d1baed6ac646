// Пакет service — бизнес-логика Search Bridge: bootstrap подключения,
// жизненный цикл групп, сверка элементов и синхронизация членства.
package service

import "errors"

// Ошибки уровня сервисов.
var (
	// ErrValidation — во входном событии отсутствует обязательный идентификатор.
	ErrValidation = errors.New("ошибка валидации входных данных")
	// ErrInconsistent — локальный маппинг утверждает, что сущность существует,
	// а платформа это отрицает. Слепое пересоздание рискует потерять ACL,
	// поэтому ошибка поднимается вызывающему, а не чинится на месте.
	ErrInconsistent = errors.New("расхождение локального состояния и платформы")
	// ErrUnknownEvent — тип события не поддерживается диспетчером.
	ErrUnknownEvent = errors.New("неизвестный тип события")
)
