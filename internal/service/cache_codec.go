package service

import "encoding/json"

// 缓存统一存 JSON 字符串，跟底层实现解耦（内存/Redis 都能换）

func marshalCached(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalCached(payload string, v interface{}) error {
	return json.Unmarshal([]byte(payload), v)
}
