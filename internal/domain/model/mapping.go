package model

import (
	"io"
	"time"
)

// GroupMapping — соответствие пула знаний Rox и внешней группы платформы.
// Хранится в таблице group_mappings: не более одной строки на pool_id
// и не более одной строки на group_id.
type GroupMapping struct {
	// PoolID — идентификатор пула знаний в Rox
	PoolID string
	// GroupID — стабильный идентификатор внешней группы
	GroupID string
	// CreatedAt — время создания маппинга
	CreatedAt time.Time
}

// ItemMapping — соответствие файла Rox и внешнего элемента платформы.
// Создаётся, когда создание элемента на платформе подтверждено;
// удаляется вместе с элементом, когда снят последний ACL grant.
type ItemMapping struct {
	// FileID — идентификатор файла в Rox
	FileID string
	// ItemID — стабильный идентификатор внешнего элемента
	ItemID string
	// CreatedAt — время создания маппинга
	CreatedAt time.Time
}

// Membership — факт "файл F сейчас входит в пул P".
// Пара (file_id, pool_id) уникальна. Источник истины для вопроса
// "каким пулам ещё нужен этот файл".
type Membership struct {
	// FileID — идентификатор файла в Rox
	FileID string
	// PoolID — идентификатор пула знаний
	PoolID string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// SyncFile — файл, передаваемый в движок синхронизации на время обработки
// одного события. Не персистируется: содержимое проходит через извлечение
// текста и отбрасывается.
type SyncFile struct {
	// ID — идентификатор файла в Rox
	ID string
	// Title — отображаемое имя файла
	Title string
	// Content — поток содержимого файла (nil, если событие не запрашивало
	// скачивание содержимого)
	Content io.Reader
}
