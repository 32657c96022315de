package domain

// Row is one flat, string-keyed line of a battle-log sheet or snapshot.
type Row map[string]string

// Column keys of the converted battle-log sheet. The defender's player and
// outcome columns repeat the attacker's header and get a _2 suffix when the
// header row is disambiguated.
const (
	ColumnDate            = "日付"
	ColumnAttackerPlayer  = "プレイヤー名"
	ColumnAttackerOutcome = "勝敗"
	ColumnDefenderPlayer  = "プレイヤー名_2"
	ColumnDefenderOutcome = "勝敗_2"
	ColumnOrigin          = "source"
)

var (
	attackerColumns = Composition{"A1", "A2", "A3", "A4", "ASP1", "ASP2"}
	defenderColumns = Composition{"D1", "D2", "D3", "D4", "DSP1", "DSP2"}
)

// CharacterColumns returns the six character columns of side.
func CharacterColumns(side Side) Composition {
	if side == SideDefense {
		return defenderColumns
	}
	return attackerColumns
}

// RecordFromRow builds a record from a flat row. Absent keys read as empty.
// The origin column is parsed leniently; an unknown label leaves Origin empty.
func RecordFromRow(row Row, season string) BattleRecord {
	rec := BattleRecord{
		Date: row[ColumnDate],
		Attacker: Team{
			Player:  row[ColumnAttackerPlayer],
			Outcome: Outcome(row[ColumnAttackerOutcome]),
		},
		Defender: Team{
			Player:  row[ColumnDefenderPlayer],
			Outcome: Outcome(row[ColumnDefenderOutcome]),
		},
		Season: season,
	}
	for i := range CompositionSize {
		rec.Attacker.Characters[i] = row[attackerColumns[i]]
		rec.Defender.Characters[i] = row[defenderColumns[i]]
	}
	if label, ok := row[ColumnOrigin]; ok {
		if o, err := ParseOrigin(label); err == nil {
			rec.Origin = o
		}
	}
	return rec
}

// Row flattens the record back into sheet columns plus the origin tag.
func (r BattleRecord) Row() Row {
	row := Row{
		ColumnDate:            r.Date,
		ColumnAttackerPlayer:  r.Attacker.Player,
		ColumnAttackerOutcome: string(r.Attacker.Outcome),
		ColumnDefenderPlayer:  r.Defender.Player,
		ColumnDefenderOutcome: string(r.Defender.Outcome),
		ColumnOrigin:          string(r.Origin),
	}
	for i := range CompositionSize {
		row[attackerColumns[i]] = r.Attacker.Characters[i]
		row[defenderColumns[i]] = r.Defender.Characters[i]
	}
	return row
}
