// Пакет extract — извлечение текста из содержимого файла для индексации.
// Результат ограничен жёстким лимитом 4 MiB: платформа отклоняет элементы
// с большим content, поэтому превышение — ошибка, а не усечение.
package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// MaxTextBytes — максимальный размер извлечённого текста в байтах.
const MaxTextBytes = 4 * 1024 * 1024

// ErrTooLarge — извлечённый текст превышает MaxTextBytes.
var ErrTooLarge = errors.New("извлечённый текст превышает 4 MiB")

// Extract читает поток содержимого и возвращает текст для индексации.
// Невалидные UTF-8 последовательности заменяются; управляющие байты,
// кроме пробельных, отбрасываются. Если результат превышает MaxTextBytes —
// возвращается ErrTooLarge, текст не усекается.
func Extract(r io.Reader) (string, error) {
	// Читаем на один байт больше лимита: так ровно 4 MiB проходит,
	// а 4 MiB + 1 байт обнаруживается без чтения всего потока.
	data, err := io.ReadAll(io.LimitReader(r, MaxTextBytes+1))
	if err != nil {
		return "", fmt.Errorf("чтение содержимого файла: %w", err)
	}
	if len(data) > MaxTextBytes {
		return "", ErrTooLarge
	}

	text := sanitize(data)
	// Замена невалидных байтов могла раздуть результат за пределы лимита.
	if len(text) > MaxTextBytes {
		return "", ErrTooLarge
	}

	return text, nil
}

// sanitize приводит байты к валидной UTF-8 строке, выбрасывая
// непечатаемые управляющие символы.
func sanitize(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]

		if r == utf8.RuneError && size == 1 {
			b.WriteRune('�')
			continue
		}
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}
