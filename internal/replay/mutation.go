package replay

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"cdpharvest/pkg/domain"
	"cdpharvest/pkg/payload"
)

// Mutation 基于请求体副本生成新的请求体，不得修改入参
type Mutation func(body []byte) ([]byte, error)

// CursorInjection 设置或覆盖分页游标字段
func CursorInjection(field, cursor string) Mutation {
	return func(body []byte) ([]byte, error) {
		src := bytes.TrimSpace(body)
		if len(src) == 0 {
			src = []byte("{}")
		}
		if !gjson.ValidBytes(src) || !gjson.ParseBytes(src).IsObject() {
			return nil, fmt.Errorf("%w: request body is not a json object", domain.ErrPayloadShape)
		}
		out, err := sjson.SetBytes(bytes.Clone(src), field, cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: set %s: %v", domain.ErrPayloadShape, field, err)
		}
		return out, nil
	}
}

// SubstituteIdentifier 将请求体中所有 key 字段替换为 id，返回新请求体与替换次数
func SubstituteIdentifier(body []byte, key, id string) ([]byte, int, error) {
	tree, err := payload.Decode(body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: request body is not json: %v", domain.ErrPayloadShape, err)
	}
	out, n := payload.Substitute(tree, key, id)
	if n == 0 {
		return nil, 0, fmt.Errorf("%w: no %q found in request body", domain.ErrPayloadShape, key)
	}
	b, err := payload.Encode(out)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: encode body: %v", domain.ErrPayloadShape, err)
	}
	return b, n, nil
}

// IdentifierSubstitution 替换实体 ID，零次替换视为变更失败
func IdentifierSubstitution(key, id string) Mutation {
	return func(body []byte) ([]byte, error) {
		out, _, err := SubstituteIdentifier(body, key, id)
		return out, err
	}
}
