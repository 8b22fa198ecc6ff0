package chatapi

import (
	"encoding/json"

	"github.com/sipeed/picochat/pkg/config"
)

// Kind is the backend's declared meaning of a reply.
type Kind int

const (
	KindOther Kind = iota
	KindSuccess
	KindAuthentication
	KindLogout
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindAuthentication:
		return "authentication"
	case KindLogout:
		return "logout"
	case KindError:
		return "error"
	default:
		return "other"
	}
}

// Response is one decoded /api/chat reply.
type Response struct {
	Reply   string
	Kind    Kind
	RawKind string
}

// wireResponse accepts both dialects the backend has used for the same
// contract: {reply, kind} and {resposta, tipo}.
type wireResponse struct {
	Reply    *string `json:"reply"`
	Resposta *string `json:"resposta"`
	Kind     *string `json:"kind"`
	Tipo     *string `json:"tipo"`
}

func (w wireResponse) reply() (string, bool) {
	if w.Reply != nil {
		return *w.Reply, true
	}
	if w.Resposta != nil {
		return *w.Resposta, true
	}
	return "", false
}

func (w wireResponse) kind() string {
	if w.Kind != nil {
		return *w.Kind
	}
	if w.Tipo != nil {
		return *w.Tipo
	}
	return ""
}

// Vocabulary maps wire kind strings onto Kind values. Kinds are matched
// exactly, case included.
type Vocabulary map[string]Kind

func NewVocabulary(v config.KindVocabulary) Vocabulary {
	voc := Vocabulary{}
	add := func(names []string, k Kind) {
		for _, n := range names {
			if n != "" {
				voc[n] = k
			}
		}
	}
	add(v.Success, KindSuccess)
	add(v.Authentication, KindAuthentication)
	add(v.Logout, KindLogout)
	add(v.Error, KindError)
	return voc
}

func (v Vocabulary) Lookup(raw string) Kind {
	if k, ok := v[raw]; ok {
		return k
	}
	return KindOther
}

func encodeRequest(field, message string) ([]byte, error) {
	return json.Marshal(map[string]string{field: message})
}
