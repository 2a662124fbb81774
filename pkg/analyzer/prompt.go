package analyzer

import (
	"fmt"
	"strings"
	"time"
)

const promptTemplate = `Analyze the text below and extract event information into a JSON object.

Decide whether this is an event, performance or party poster. Classify generously.

It IS an event poster if ANY of these are present:
- Date information (날짜, 일시, 月, 日, dates like 1/23 or 01.23)
- Event keywords: 공연, 라이브, 파티, 콘서트, 페스티벌, 클럽, DJ, 이벤트, LIVE, PARTY, CONCERT, FESTIVAL, GIG, SHOW, 출연, ライブ, イベント
- Venue names (클럽, 홀, 바, 라운지, Club, Hall, Bar, Lounge)
- Ticket or entry info (입장료, 티켓, 예매, ADV, DOOR, ¥, ₩)
- Artist or performer names, lineups

It is NOT an event poster only if it is clearly a personal photo, a food review,
a product advertisement or a travel photo with no performance information.
When in doubt, set is_event_poster to true.

Fields:
- "is_event_poster": boolean.
- "dates": list of "YYYY-MM-DD" strings, empty if none. When the year is missing:
  * today is %[1]d-%02[2]d; use %[1]d by default
  * if the current month is Jan-Mar and the event month is Oct-Dec, use %[3]d
  * if the current month is Oct-Dec and the event month is Jan-Mar, use %[4]d
- "time": start time as 24-hour "HH:MM" ("7PM" -> "19:00", "오후 7시" -> "19:00").
  Use the OPEN/DOOR time if it is the only one shown, the earliest if several. Empty if none.
- "venue": short venue name such as "Club Soap" or "Rolling Hall", not an address. Empty if none.
- "location": full street address if present. Empty if none.
- "country": two-letter country code inferred from the address, script or currency
  (서울/부산 -> "KR", 東京/大阪 or ¥ -> "JP", US cities -> "US"). Default "KR".
- "artist": artist name, or "Various" for several. Empty if none.
- "title": event title or the main text of the poster.

Text:
%[5]s

Return ONLY the JSON object.`

func buildPrompt(text string, now time.Time) string {
	year := now.Year()
	return strings.TrimSpace(fmt.Sprintf(promptTemplate, year, int(now.Month()), year-1, year+1, text))
}
