package phone

import "strings"

// 巴西手机号在网关侧可能出现多种写法：带/不带国家码 55、
// 区号后带/不带第九位的 9、带/不带 JID 后缀。
// Expand 负责把一个原始号码铺开成所有可能的写法，
// 发送时取 Canonical 存储，入站时用整个集合去查活跃会话。

const (
	// JIDSuffix 网关使用的会话标识后缀
	JIDSuffix = "@s.whatsapp.net"

	countryCode = "55"
	minDigits   = 10
)

// Digits 去掉 JID 后缀和所有非数字字符。
func Digits(raw string) string {
	if idx := strings.IndexByte(raw, '@'); idx >= 0 {
		raw = raw[:idx]
	}

	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Expand 返回号码所有可能写法的集合（有序去重，每个变体都含裸形式和 JID 形式）。
// 不足 10 位的候选一律丢弃；输入本身不足 10 位时返回空集。
func Expand(raw string) []string {
	digits := Digits(raw)
	if len(digits) < minDigits {
		return nil
	}

	var variants []string

	national := digits
	if hasCountryCode(digits) {
		national = digits[len(countryCode):]
	}

	if len(national) == 10 || len(national) == 11 {
		// 裸形式和加 55 的形式都要，各自再按第九位展开。
		// 两个方向都展开才能保证：集合里任一成员再展开，原始写法仍在集合里
		nationals := ninthDigitVariants(national)
		variants = append(variants, nationals...)
		for _, n := range nationals {
			variants = append(variants, countryCode+n)
		}
	} else {
		// 不符合巴西本地号长度，不做推理，原样保留
		variants = append(variants, digits)
	}

	out := make([]string, 0, len(variants)*2)
	seen := make(map[string]bool, len(variants)*2)
	for _, v := range variants {
		if len(v) < minDigits {
			continue
		}
		for _, form := range []string{v, v + JIDSuffix} {
			if !seen[form] {
				seen[form] = true
				out = append(out, form)
			}
		}
	}
	return out
}

// Canonical 返回用于存储的规范形式：国家码 + 含第九位的 11 位本地号 + JID 后缀。
// 输入无法展开时返回 ok=false。
func Canonical(raw string) (string, bool) {
	candidates := Expand(raw)
	if len(candidates) == 0 {
		return "", false
	}

	for _, c := range candidates {
		d := Digits(c)
		if hasCountryCode(d) && len(d) == len(countryCode)+11 {
			return d + JIDSuffix, true
		}
	}
	// 非巴西规则的号码，取第一个 JID 形式
	for _, c := range candidates {
		if strings.HasSuffix(c, JIDSuffix) {
			return c, true
		}
	}
	return candidates[0], true
}

// hasCountryCode 判断是否带国家码。10~11 位一律视为本地号，
// 区号 55（南里奥格兰德）不能误判成国家码。
func hasCountryCode(digits string) bool {
	return len(digits) >= 12 && strings.HasPrefix(digits, countryCode)
}

// ninthDigitVariants 对本地号做第九位展开：
// 10 位补 9，区号后是 9 的 11 位去 9，互为镜像。
func ninthDigitVariants(national string) []string {
	switch {
	case len(national) == 10:
		return []string{national, national[:2] + "9" + national[2:]}
	case len(national) == 11 && national[2] == '9':
		return []string{national, national[:2] + national[3:]}
	default:
		return []string{national}
	}
}
