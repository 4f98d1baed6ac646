// Пакет searchplatform — HTTP-клиент к API внешней поисковой платформы.
// models.go — модели данных платформы.
package searchplatform

// TokenResponse — ответ на запрос токена через Client Credentials flow.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Connection — подключение (контейнер схемы, групп и элементов) на платформе.
type Connection struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	State       string `json:"state,omitempty"`
}

// Schema — схема элементов подключения.
// Платформа принимает запись элементов только после регистрации схемы.
type Schema struct {
	BaseType   string           `json:"baseType"`
	Properties []SchemaProperty `json:"properties"`
}

// SchemaProperty — одно свойство схемы элементов.
type SchemaProperty struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	IsSearchable  bool     `json:"isSearchable"`
	IsQueryable   bool     `json:"isQueryable"`
	IsRetrievable bool     `json:"isRetrievable"`
	// Labels — семантические метки платформы (title, url, iconUrl, ...).
	Labels []string `json:"labels,omitempty"`
}

// ExternalGroup — группа доступа на платформе.
type ExternalGroup struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

// GroupMember — член внешней группы.
type GroupMember struct {
	// ID — идентификатор identity в каталоге.
	ID string `json:"id"`
	// Type — тип identity: group или user.
	Type string `json:"type"`
}

// Типы и уровни доступа ACL-записей.
const (
	// ACLTypeExternalGroup — grant для конкретной внешней группы.
	ACLTypeExternalGroup = "externalGroup"
	// ACLTypeEveryone — grant для всех пользователей каталога.
	ACLTypeEveryone = "everyone"
	// ACLAccessGrant — разрешающая запись.
	ACLAccessGrant = "grant"

	// MemberTypeGroup — identity каталога типа "группа".
	MemberTypeGroup = "group"
)

// ACLEntry — запись списка доступа элемента.
type ACLEntry struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Access string `json:"accessType"`
}

// ItemProperties — фиксированный набор свойств внешнего элемента.
// На проводе платформа принимает generic-словарь; типизированная структура
// сериализуется в него на границе клиента (см. propertiesMap).
type ItemProperties struct {
	Title            string
	URL              string
	RoxFileID        string
	IconURL          string
	KnowledgePoolIDs string
	Description      string
}

// propertiesMap превращает типизированные свойства в словарь платформы.
// Пустые значения опускаются: это позволяет частичные обновления,
// когда отправляется только одно свойство.
func (p *ItemProperties) propertiesMap() map[string]string {
	m := make(map[string]string, 6)
	if p.Title != "" {
		m["title"] = p.Title
	}
	if p.URL != "" {
		m["url"] = p.URL
	}
	if p.RoxFileID != "" {
		m["roxFileId"] = p.RoxFileID
	}
	if p.IconURL != "" {
		m["iconUrl"] = p.IconURL
	}
	if p.KnowledgePoolIDs != "" {
		m["knowledgePoolIds"] = p.KnowledgePoolIDs
	}
	if p.Description != "" {
		m["description"] = p.Description
	}
	return m
}

// ItemContent — индексируемое содержимое элемента.
type ItemContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ExternalItem — внешний элемент платформы.
// При upsert сериализуются только заполненные части (Content, Properties,
// ACL), что даёт платформе частичное обновление.
type ExternalItem struct {
	ID         string
	Content    *ItemContent
	Properties *ItemProperties
	ACL        []ACLEntry
}

// itemWire — проводное представление элемента для upsert/get.
type itemWire struct {
	ID         string            `json:"id,omitempty"`
	Content    *ItemContent      `json:"content,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	ACL        []ACLEntry        `json:"acl,omitempty"`
}

// toWire сериализует элемент в проводное представление.
func (i *ExternalItem) toWire() itemWire {
	w := itemWire{
		ID:      i.ID,
		Content: i.Content,
		ACL:     i.ACL,
	}
	if i.Properties != nil {
		w.Properties = i.Properties.propertiesMap()
	}
	return w
}

// fromWire восстанавливает элемент из проводного представления.
func fromWire(w itemWire) *ExternalItem {
	item := &ExternalItem{
		ID:      w.ID,
		Content: w.Content,
		ACL:     w.ACL,
	}
	if len(w.Properties) > 0 {
		item.Properties = &ItemProperties{
			Title:            w.Properties["title"],
			URL:              w.Properties["url"],
			RoxFileID:        w.Properties["roxFileId"],
			IconURL:          w.Properties["iconUrl"],
			KnowledgePoolIDs: w.Properties["knowledgePoolIds"],
			Description:      w.Properties["description"],
		}
	}
	return item
}
